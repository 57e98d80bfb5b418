// Package pruner implements early stopping of unpromising trials based
// on the intermediate objective values they report while running.
package pruner

import (
	"errors"
	"fmt"
	"sort"

	"github.com/calderml/sweep/internal/study"
)

// ErrUnknownPruner is returned when a configured pruner name has no implementation.
var ErrUnknownPruner = errors.New("unknown pruner")

// Pruner decides whether a running trial should be stopped early.
type Pruner interface {
	// Name returns the pruner's configuration name.
	Name() string

	// ShouldPrune reports whether a trial that just reported value at
	// step should stop, given the values other trials reported at the
	// same step.
	ShouldPrune(direction study.Direction, value float64, step int, others []study.IntermediateValue) bool
}

// Pruner configuration names
const (
	NameNop    = "nop"
	NameMedian = "median"
)

// New constructs the pruner selected by name.
func New(name string) (Pruner, error) {
	switch name {
	case NameNop, "":
		return Nop{}, nil
	case NameMedian:
		return NewMedian(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPruner, name)
	}
}

// Nop never prunes.
type Nop struct{}

// Name returns the pruner's configuration name.
func (Nop) Name() string { return NameNop }

// ShouldPrune always reports false.
func (Nop) ShouldPrune(study.Direction, float64, int, []study.IntermediateValue) bool {
	return false
}

// Median prunes a trial whose reported value is worse than the median
// of the values other trials reported at the same step.
type Median struct {
	// MinTrials is how many other trials must have reported at the step
	// before pruning activates.
	MinTrials int

	// WarmupSteps disables pruning below this step, giving every trial
	// a chance to get past noisy early readings.
	WarmupSteps int
}

// NewMedian creates a median pruner with the default activation bounds.
func NewMedian() *Median {
	return &Median{
		MinTrials:   4,
		WarmupSteps: 1,
	}
}

// Name returns the pruner's configuration name.
func (p *Median) Name() string { return NameMedian }

// ShouldPrune reports whether value is strictly worse than the median
// of the other trials' values at the same step.
func (p *Median) ShouldPrune(
	direction study.Direction,
	value float64,
	step int,
	others []study.IntermediateValue,
) bool {
	if step < p.WarmupSteps || len(others) < p.MinTrials {
		return false
	}

	values := make([]float64, len(others))
	for i, iv := range others {
		values[i] = iv.Value
	}
	sort.Float64s(values)

	var median float64
	n := len(values)
	if n%2 == 1 {
		median = values[n/2]
	} else {
		median = (values[n/2-1] + values[n/2]) / 2
	}

	return direction.Better(median, value)
}
