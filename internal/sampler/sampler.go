// Package sampler implements the strategies the search coordinator uses
// to propose the next hyperparameter assignment: random search, grid
// search, and a tree-structured Parzen estimator. All samplers are
// seeded explicitly so a study is reproducible given its configuration.
package sampler

import (
	"errors"
	"fmt"

	"github.com/calderml/sweep/internal/study"
)

// Sampler-related errors
var (
	// ErrUnknownSampler is returned when a configured sampler name has no implementation.
	ErrUnknownSampler = errors.New("unknown sampler")

	// ErrSpaceExhausted is returned by finite samplers once every point has been proposed.
	ErrSpaceExhausted = errors.New("search space exhausted")
)

// Sampler proposes hyperparameter assignments for new trials.
// Implementations must be safe for concurrent use: the coordinator calls
// Sample from every trial worker.
type Sampler interface {
	// Name returns the sampler's configuration name.
	Name() string

	// Sample proposes the next assignment for the given space. Previous
	// trials of the study are provided so adaptive strategies can learn
	// from completed evaluations.
	Sample(space study.SearchSpace, previous []*study.Trial) (study.Params, error)
}

// Sampler configuration names
const (
	NameRandom = "random"
	NameGrid   = "grid"
	NameTPE    = "tpe"
)

// New constructs the sampler selected by name, seeded for reproducibility.
// The direction is used by adaptive samplers to rank completed trials.
func New(name string, seed int64, direction study.Direction) (Sampler, error) {
	switch name {
	case NameRandom:
		return NewRandom(seed), nil
	case NameGrid:
		return NewGrid(), nil
	case NameTPE:
		return NewTPE(seed, direction), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSampler, name)
	}
}

// completedValues extracts (params, value) observations from trials that
// finished with a recorded objective value.
func completedValues(previous []*study.Trial) []*study.Trial {
	var out []*study.Trial
	for _, t := range previous {
		if t.State == study.TrialStateComplete && t.Value != nil {
			out = append(out, t)
		}
	}
	return out
}
