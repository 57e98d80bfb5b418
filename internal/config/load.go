package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("storage.uri", "")

	v.SetEnvPrefix("SWEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about, so every
	// key that can come from the environment is bound explicitly.
	for _, key := range []string{
		"server.port",
		"server.log_level",
		"storage.uri",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment variable for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// DecodeTuning maps a composed and interpolated tuning document onto the
// typed Tuning view and validates it. Defaults that a document may omit
// (n_jobs, pruner) are applied before validation.
func DecodeTuning(tree map[string]any) (*Tuning, error) {
	// Parameter names under sweeper.params are dotted configuration
	// paths (hparams.lr), so viper's default "." key delimiter would
	// split them into nested maps.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))

	v.SetDefault("sweeper::n_jobs", 1)
	v.SetDefault("sweeper::pruner", "nop")

	if err := v.MergeConfigMap(tree); err != nil {
		return nil, fmt.Errorf("failed to read tuning document: %w", err)
	}

	var tuning Tuning
	if err := v.Unmarshal(&tuning); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tuning document: %w", err)
	}

	if err := validator.New().Struct(&tuning); err != nil {
		return nil, fmt.Errorf("tuning document validation failed: %w", err)
	}

	return &tuning, nil
}
