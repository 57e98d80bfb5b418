package sweep

import (
	"context"
	"errors"
	"fmt"

	"github.com/calderml/sweep/internal/pruner"
	"github.com/calderml/sweep/internal/store"
	"github.com/calderml/sweep/internal/study"
)

// ErrPruned is returned by ActiveTrial.Report when the pruner decides
// the trial should stop. Objectives must propagate it unchanged.
var ErrPruned = errors.New("trial pruned")

// Objective evaluates one trial and returns its objective value.
type Objective interface {
	Evaluate(ctx context.Context, trial *ActiveTrial) (float64, error)
}

// ObjectiveFunc adapts a plain function to the Objective interface.
type ObjectiveFunc func(ctx context.Context, trial *ActiveTrial) (float64, error)

// Evaluate calls the wrapped function.
func (f ObjectiveFunc) Evaluate(ctx context.Context, trial *ActiveTrial) (float64, error) {
	return f(ctx, trial)
}

// ActiveTrial is the objective's handle on a running trial: its sampled
// parameters plus intermediate-value reporting with pruning.
type ActiveTrial struct {
	trial     *study.Trial
	direction study.Direction
	store     store.StudyStore
	pruner    pruner.Pruner
}

// Number returns the trial's zero-based position within the study.
func (at *ActiveTrial) Number() int { return at.trial.Number }

// Params returns the sampled hyperparameter assignment.
func (at *ActiveTrial) Params() study.Params { return at.trial.Params }

// Float returns a float-valued parameter.
func (at *ActiveTrial) Float(name string) (float64, error) {
	v, ok := at.trial.Params[name]
	if !ok {
		return 0, fmt.Errorf("trial has no parameter %q", name)
	}
	switch f := v.(type) {
	case float64:
		return f, nil
	case int:
		return float64(f), nil
	default:
		return 0, fmt.Errorf("parameter %q is %T, not a number", name, v)
	}
}

// Int returns an int-valued parameter.
func (at *ActiveTrial) Int(name string) (int, error) {
	v, ok := at.trial.Params[name]
	if !ok {
		return 0, fmt.Errorf("trial has no parameter %q", name)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("parameter %q is %T, not an integer", name, v)
	}
}

// Choice returns a categorical parameter.
func (at *ActiveTrial) Choice(name string) (string, error) {
	v, ok := at.trial.Params[name]
	if !ok {
		return "", fmt.Errorf("trial has no parameter %q", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q is %T, not a choice", name, v)
	}
	return s, nil
}

// Report records an intermediate objective value at the given step and
// consults the pruner. Returns ErrPruned when the trial should stop;
// the objective must return that error from Evaluate.
func (at *ActiveTrial) Report(ctx context.Context, step int, value float64) error {
	if err := at.store.ReportIntermediate(ctx, at.trial.ID, step, value); err != nil {
		return err
	}

	all, err := at.store.IntermediatesAtStep(ctx, at.trial.StudyID, step)
	if err != nil {
		return err
	}

	others := make([]study.IntermediateValue, 0, len(all))
	for _, iv := range all {
		if iv.TrialID != at.trial.ID {
			others = append(others, iv)
		}
	}

	if at.pruner.ShouldPrune(at.direction, value, step, others) {
		return fmt.Errorf("%w: step %d value %g below peers", ErrPruned, step, value)
	}
	return nil
}
