package sweep

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/calderml/sweep/internal/events"
	"github.com/calderml/sweep/internal/pruner"
	"github.com/calderml/sweep/internal/sampler"
	"github.com/calderml/sweep/internal/store"
	"github.com/calderml/sweep/internal/study"
)

// CoordinatorConfig holds configuration for the search coordinator.
type CoordinatorConfig struct {
	// StudyName is the resolved study identifier. Re-running with the
	// same name resumes the persisted study.
	StudyName string

	// Direction is the optimization direction of the objective.
	Direction study.Direction

	// Space is the search space trials are sampled from.
	Space study.SearchSpace

	// Trials bounds the total number of trials in the study, counting
	// terminal trials persisted by previous invocations.
	Trials int

	// Jobs determines how many trials run concurrently. The default
	// configuration runs trials sequentially (one job).
	Jobs int
}

// Coordinator schedules trials for one study.
type Coordinator struct {
	config    CoordinatorConfig
	db        *sql.DB
	store     store.StudyStore
	sampler   sampler.Sampler
	pruner    pruner.Pruner
	objective Objective
	emitter   events.EventEmitter
	logger    *slog.Logger

	// mu serializes sampling so adaptive samplers always see a
	// consistent trial history.
	mu sync.Mutex
}

// NewCoordinator creates a Coordinator for the given study configuration.
// The db handle runs trial allocation inside a transaction.
func NewCoordinator(
	config CoordinatorConfig,
	db *sql.DB,
	studyStore store.StudyStore,
	smp sampler.Sampler,
	prn pruner.Pruner,
	objective Objective,
	emitter events.EventEmitter,
	logger *slog.Logger,
) *Coordinator {
	if config.Jobs <= 0 {
		config.Jobs = 1
	}
	return &Coordinator{
		config:    config,
		db:        db,
		store:     studyStore,
		sampler:   smp,
		pruner:    prn,
		objective: objective,
		emitter:   emitter,
		logger:    logger.With("component", "coordinator", "study", config.StudyName),
	}
}

// Run executes the study until the trial budget is spent, then returns
// the best completed trial. An existing study of the same name is
// resumed; trials left running by an interrupted process are failed
// first and count toward the budget.
func (c *Coordinator) Run(ctx context.Context) (*study.Trial, error) {
	st, err := c.ensureStudy(ctx)
	if err != nil {
		return nil, err
	}

	reset, err := c.store.FailRunningTrials(ctx, st.ID, "reset after interrupted run")
	if err != nil {
		return nil, fmt.Errorf("failed to recover interrupted trials: %w", err)
	}
	if reset > 0 {
		c.logger.Warn("failed trials left running by a previous process", "count", reset)
	}

	existing, err := c.store.ListTrials(ctx, st.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list existing trials: %w", err)
	}

	nextNumber := 0
	if n := len(existing); n > 0 {
		nextNumber = existing[n-1].Number + 1
	}
	remaining := c.config.Trials - len(existing)

	c.logger.Info("starting study",
		"direction", c.config.Direction,
		"sampler", c.sampler.Name(),
		"pruner", c.pruner.Name(),
		"existing_trials", len(existing),
		"remaining_trials", remaining,
		"jobs", c.config.Jobs)

	if remaining > 0 {
		numbers := make(chan int)

		var wg sync.WaitGroup
		for i := 0; i < c.config.Jobs; i++ {
			wg.Add(1)
			go c.worker(ctx, st, numbers, &wg, i)
		}

	feed:
		for n := nextNumber; n < nextNumber+remaining; n++ {
			select {
			case numbers <- n:
			case <-ctx.Done():
				break feed
			}
		}
		close(numbers)
		wg.Wait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	best, err := c.store.BestTrial(ctx, st.ID, c.config.Direction)
	if err != nil {
		if errors.Is(err, store.ErrTrialNotFound) {
			return nil, fmt.Errorf("study %q finished without a completed trial: %w", st.Name, err)
		}
		return nil, err
	}

	c.logger.Info("study finished",
		"best_trial", best.Number,
		"best_value", *best.Value,
		"best_params", best.Params)

	return best, nil
}

// ensureStudy loads the study by name or creates it. A direction
// mismatch against a resumed study is an error.
func (c *Coordinator) ensureStudy(ctx context.Context) (*study.Study, error) {
	existing, err := c.store.GetStudyByName(ctx, c.config.StudyName)
	if err == nil {
		if existing.Direction != c.config.Direction {
			return nil, fmt.Errorf("study %q exists with direction %q, configured %q",
				existing.Name, existing.Direction, c.config.Direction)
		}
		c.logger.Info("resuming existing study", "study_id", existing.ID)
		return existing, nil
	}
	if !errors.Is(err, store.ErrStudyNotFound) {
		return nil, err
	}

	st, err := study.NewStudy(c.config.StudyName, c.config.Direction)
	if err != nil {
		return nil, err
	}
	if err := c.store.CreateStudy(ctx, st); err != nil {
		// Another process may have created the study concurrently.
		if store.IsDuplicateError(err) {
			return c.store.GetStudyByName(ctx, c.config.StudyName)
		}
		return nil, err
	}

	c.logger.Info("created study", "study_id", st.ID)
	return st, nil
}

// worker consumes trial numbers from the queue and runs one trial each.
func (c *Coordinator) worker(ctx context.Context, st *study.Study, numbers <-chan int, wg *sync.WaitGroup, id int) {
	defer wg.Done()

	c.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("stopping worker", "worker_id", id)
			return

		case number, ok := <-numbers:
			if !ok {
				c.logger.Debug("trial queue drained, stopping worker", "worker_id", id)
				return
			}
			if err := c.runTrial(ctx, st, number); err != nil {
				if errors.Is(err, sampler.ErrSpaceExhausted) {
					c.logger.Info("search space exhausted, skipping remaining trials",
						"trial_number", number)
					continue
				}
				c.logger.Error("trial scheduling failed",
					"trial_number", number,
					"error", err)
			}
		}
	}
}

// runTrial samples, persists, and evaluates one trial.
func (c *Coordinator) runTrial(ctx context.Context, st *study.Study, number int) error {
	trial, err := c.startTrial(ctx, st, number)
	if err != nil {
		return err
	}

	logger := c.logger.With("trial_number", trial.Number, "trial_id", trial.ID)
	logger.Info("trial started", "params", trial.Params)
	c.emit(ctx, events.TrialStarted, st.Name, trial)

	active := &ActiveTrial{
		trial:     trial,
		direction: c.config.Direction,
		store:     c.store,
		pruner:    c.pruner,
	}

	value, err := c.objective.Evaluate(ctx, active)

	switch {
	case errors.Is(err, ErrPruned):
		logger.Info("trial pruned", "reason", err)
		if ferr := c.store.FinishTrial(ctx, trial.ID, study.TrialStatePruned, nil, err.Error()); ferr != nil {
			return ferr
		}
		trial.State = study.TrialStatePruned
		c.emit(ctx, events.TrialPruned, st.Name, trial)

	case err != nil:
		logger.Error("trial failed", "error", err)
		if ferr := c.store.FinishTrial(ctx, trial.ID, study.TrialStateFailed, nil, err.Error()); ferr != nil {
			return ferr
		}
		trial.State = study.TrialStateFailed
		trial.ErrorMessage = err.Error()
		c.emit(ctx, events.TrialFailed, st.Name, trial)

	default:
		logger.Info("trial completed", "value", value)
		if ferr := c.store.FinishTrial(ctx, trial.ID, study.TrialStateComplete, &value, ""); ferr != nil {
			return ferr
		}
		trial.State = study.TrialStateComplete
		trial.Value = &value
		c.emit(ctx, events.TrialCompleted, st.Name, trial)
	}

	return nil
}

// startTrial samples an assignment under the sampling lock and persists
// the new running trial. History read and insert share one transaction
// so the sampler never proposes against a partially allocated study.
func (c *Coordinator) startTrial(ctx context.Context, st *study.Study, number int) (*study.Trial, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var trial *study.Trial
	err := store.RunInTransaction(ctx, c.db, func(ctx context.Context, tx *sql.Tx) error {
		txStore := c.store.WithTx(tx)

		previous, err := txStore.ListTrials(ctx, st.ID)
		if err != nil {
			return fmt.Errorf("failed to load trial history: %w", err)
		}

		params, err := c.sampler.Sample(c.config.Space, previous)
		if err != nil {
			return err
		}

		t, err := study.NewTrial(st.ID, number, params)
		if err != nil {
			return err
		}
		if err := txStore.CreateTrial(ctx, t); err != nil {
			return err
		}
		trial = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trial, nil
}

func (c *Coordinator) emit(ctx context.Context, eventType events.TrialEventType, studyName string, trial *study.Trial) {
	if c.emitter == nil {
		return
	}
	if err := c.emitter.EmitEvent(ctx, events.NewTrialEvent(eventType, studyName, *trial)); err != nil {
		c.logger.Error("failed to emit trial event",
			"event_type", eventType,
			"trial_number", trial.Number,
			"error", err)
	}
}
