package sampler

import (
	"sync"

	"github.com/calderml/sweep/internal/study"
)

// gridResolution is how many points a continuous interval contributes
// to the grid.
const gridResolution = 10

// Grid enumerates the cartesian product of every parameter's grid
// values in deterministic order.
type Grid struct {
	mu    sync.Mutex
	names []string
	axes  [][]any
	next  int
	total int
}

// NewGrid creates a grid sampler. The grid itself is built lazily from
// the space of the first Sample call.
func NewGrid() *Grid {
	return &Grid{}
}

// Name returns the sampler's configuration name.
func (s *Grid) Name() string { return NameGrid }

// Sample proposes the next unvisited grid point.
// Returns ErrSpaceExhausted when the full product has been proposed.
func (s *Grid) Sample(space study.SearchSpace, previous []*study.Trial) (study.Params, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.axes == nil {
		s.names = space.Names()
		s.axes = make([][]any, len(s.names))
		s.total = 1
		for i, name := range s.names {
			s.axes[i] = space[name].GridValues(gridResolution)
			s.total *= len(s.axes[i])
		}
	}

	// Every persisted trial consumed one grid point, so a resumed study
	// continues at the first unvisited index.
	if len(previous) > s.next {
		s.next = len(previous)
	}

	if s.next >= s.total {
		return nil, ErrSpaceExhausted
	}

	// Decode the linear index into one coordinate per axis.
	idx := s.next
	s.next++

	params := make(study.Params, len(s.names))
	for i, name := range s.names {
		axis := s.axes[i]
		params[name] = axis[idx%len(axis)]
		idx /= len(axis)
	}
	return params, nil
}
