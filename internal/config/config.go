package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" validate:"required"`
	Storage StorageConfig `mapstructure:"storage"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// StorageConfig overrides where study results are persisted. When URI is
// empty the storage URI from the composed tuning document is used.
type StorageConfig struct {
	URI string `mapstructure:"uri"`
}

// Tuning is the typed view of a composed tuning document: the job
// identity, the trainer command evaluated per trial, and the sweeper
// section that drives the search.
type Tuning struct {
	Job     JobConfig     `mapstructure:"job" validate:"required"`
	Trainer TrainerConfig `mapstructure:"trainer" validate:"required"`
	Sweeper SweeperConfig `mapstructure:"sweeper" validate:"required"`
}

// JobConfig identifies the tuning job.
type JobConfig struct {
	Name string `mapstructure:"name" validate:"required"`

	// Dir is where per-trial run directories are created. Defaults to
	// results/<job name>.
	Dir string `mapstructure:"dir"`
}

// TrainerConfig describes the command launched for every trial. Sampled
// parameters are appended as dotted key=value override arguments, and
// the command reports its objective value through ResultFile in the
// trial's run directory.
type TrainerConfig struct {
	Program    string   `mapstructure:"program" validate:"required"`
	Args       []string `mapstructure:"args"`
	ResultFile string   `mapstructure:"result_file"`
}

// SamplerConfig selects the search strategy and its seed.
type SamplerConfig struct {
	Name string `mapstructure:"name" validate:"required,oneof=random grid tpe"`
	Seed int64  `mapstructure:"seed"`
}

// SweeperConfig holds the search settings of a tuning document.
type SweeperConfig struct {
	Sampler   SamplerConfig     `mapstructure:"sampler" validate:"required"`
	Direction string            `mapstructure:"direction" validate:"required,oneof=maximize minimize"`
	StudyName string            `mapstructure:"study_name" validate:"required"`
	Storage   string            `mapstructure:"storage" validate:"required"`
	NTrials   int               `mapstructure:"n_trials" validate:"required,gt=0"`
	NJobs     int               `mapstructure:"n_jobs" validate:"required,gt=0"`
	Pruner    string            `mapstructure:"pruner" validate:"omitempty,oneof=nop median"`
	Params    map[string]string `mapstructure:"params" validate:"required,min=1,dive,required"`
}
