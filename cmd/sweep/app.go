package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/calderml/sweep/internal/api"
	"github.com/calderml/sweep/internal/compose"
	"github.com/calderml/sweep/internal/config"
	"github.com/calderml/sweep/internal/events"
	"github.com/calderml/sweep/internal/platform/logger"
	"github.com/calderml/sweep/internal/platform/sqldb"
	"github.com/calderml/sweep/internal/pruner"
	"github.com/calderml/sweep/internal/sampler"
	"github.com/calderml/sweep/internal/study"
	"github.com/calderml/sweep/internal/sweep"
)

// run composes the tuning document, opens storage, and drives the study
// to completion. The status API is served for the duration of the run.
func run(ctx context.Context, flags appFlags) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.Setup(cfg.Server.LogLevel)
	ctx = logger.WithContext(ctx, log)

	tuning, err := composeTuning(flags)
	if err != nil {
		return err
	}

	direction, err := study.ParseDirection(tuning.Sweeper.Direction)
	if err != nil {
		return err
	}

	space, err := study.ParseSpace(tuning.Sweeper.Params)
	if err != nil {
		return fmt.Errorf("invalid search space: %w", err)
	}

	storageURI := tuning.Sweeper.Storage
	if cfg.Storage.URI != "" {
		storageURI = cfg.Storage.URI
	}

	db, dialect, err := sqldb.Open(storageURI)
	if err != nil {
		return fmt.Errorf("failed to open study storage: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := sqldb.Migrate(db, dialect); err != nil {
		return fmt.Errorf("failed to migrate study storage: %w", err)
	}
	studyStore := sqldb.NewStudyStore(db, dialect)

	smp, err := sampler.New(tuning.Sweeper.Sampler.Name, tuning.Sweeper.Sampler.Seed, direction)
	if err != nil {
		return err
	}
	prn, err := pruner.New(tuning.Sweeper.Pruner)
	if err != nil {
		return err
	}

	emitter := events.NewInMemoryEventEmitter(log)
	emitter.RegisterHandler(&trialLogger{logger: log})

	runRoot := tuning.Job.Dir
	if runRoot == "" {
		runRoot = filepath.Join("results", tuning.Job.Name)
	}

	objective := &sweep.CommandObjective{
		Program:    tuning.Trainer.Program,
		Args:       tuning.Trainer.Args,
		RunRoot:    runRoot,
		ResultFile: tuning.Trainer.ResultFile,
	}

	coordinator := sweep.NewCoordinator(sweep.CoordinatorConfig{
		StudyName: tuning.Sweeper.StudyName,
		Direction: direction,
		Space:     space,
		Trials:    tuning.Sweeper.NTrials,
		Jobs:      tuning.Sweeper.NJobs,
	}, db, studyStore, smp, prn, objective, emitter, log)

	stopAPI, err := serveAPI(cfg, flags, studyStore, log)
	if err != nil {
		return err
	}
	defer stopAPI()

	best, err := coordinator.Run(ctx)
	if err != nil {
		return err
	}

	log.Info("best trial",
		"study", tuning.Sweeper.StudyName,
		"number", best.Number,
		"value", *best.Value,
		"params", best.Params)

	return nil
}

// composeTuning loads and composes the tuning document, applies command
// line overrides, interpolates placeholders, and decodes the result.
func composeTuning(flags appFlags) (*config.Tuning, error) {
	doc, err := compose.LoadDocument(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load tuning document: %w", err)
	}

	configDir := flags.configDir
	if configDir == "" {
		configDir = filepath.Dir(flags.configPath)
	}

	tree, err := compose.NewResolver(configDir).Resolve(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to compose tuning document: %w", err)
	}

	for _, override := range flags.overrides {
		path, value, err := parseOverride(override)
		if err != nil {
			return nil, err
		}
		if err := compose.ApplyOverride(tree, path, value); err != nil {
			return nil, fmt.Errorf("failed to apply override %q: %w", override, err)
		}
	}

	if err := compose.NewInterpolator().Tree(tree); err != nil {
		return nil, fmt.Errorf("failed to interpolate tuning document: %w", err)
	}

	return config.DecodeTuning(tree)
}

// parseOverride splits a key=value command line override. The value is
// decoded as a YAML scalar so numbers and booleans keep their types.
func parseOverride(arg string) (string, any, error) {
	path, raw, found := strings.Cut(arg, "=")
	if !found || path == "" {
		return "", nil, fmt.Errorf("override %q is not of the form key=value", arg)
	}

	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		return "", nil, fmt.Errorf("override %q has an unparsable value: %w", arg, err)
	}

	return path, value, nil
}

// serveAPI starts the status API for the duration of the run. The -listen
// flag overrides the configured port; "none" disables the API entirely.
func serveAPI(cfg *config.Config, flags appFlags, studyStore *sqldb.StudyStore, log *slog.Logger) (func(), error) {
	if flags.listen == "none" {
		return func() {}, nil
	}

	addr := flags.listen
	if addr == "" {
		addr = fmt.Sprintf(":%d", cfg.Server.Port)
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(api.NewStudyHandler(studyStore, log)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("status API listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("status API failed", "error", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("status API shutdown failed", "error", err)
		}
	}, nil
}

// trialLogger logs trial lifecycle events from the event bus.
type trialLogger struct {
	logger *slog.Logger
}

func (l *trialLogger) HandleEvent(_ context.Context, event *events.TrialEvent) error {
	l.logger.Info("trial event",
		"type", event.Type,
		"study", event.StudyName,
		"trial_number", event.Trial.Number,
		"state", event.Trial.State)
	return nil
}
