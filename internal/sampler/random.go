package sampler

import (
	"math/rand"
	"sync"

	"github.com/calderml/sweep/internal/study"
)

// Random samples every parameter independently from its distribution.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom creates a seeded random sampler.
func NewRandom(seed int64) *Random {
	return &Random{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Name returns the sampler's configuration name.
func (s *Random) Name() string { return NameRandom }

// Sample proposes an independent draw for each parameter.
func (s *Random) Sample(space study.SearchSpace, _ []*study.Trial) (study.Params, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	params := make(study.Params, len(space))
	for _, name := range space.Names() {
		params[name] = space[name].Sample(s.rng)
	}
	return params, nil
}
