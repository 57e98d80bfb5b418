package sampler

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/calderml/sweep/internal/study"
)

// TPE defaults
const (
	// tpeStartupTrials is how many completed trials must exist before the
	// estimator takes over from random sampling.
	tpeStartupTrials = 10

	// tpeGamma is the fraction of completed trials treated as "good".
	tpeGamma = 0.25

	// tpeCandidates is how many candidate draws are scored per parameter.
	tpeCandidates = 24
)

// TPE is a tree-structured Parzen estimator. Completed trials are split
// into a good and a bad set by objective value; candidates drawn from a
// kernel-density estimate of the good set are ranked by the density
// ratio good/bad, and the highest-scoring candidate is proposed.
type TPE struct {
	mu        sync.Mutex
	rng       *rand.Rand
	direction study.Direction

	startupTrials int
	gamma         float64
	candidates    int
}

// NewTPE creates a seeded TPE sampler for the given direction.
func NewTPE(seed int64, direction study.Direction) *TPE {
	return &TPE{
		rng:           rand.New(rand.NewSource(seed)),
		direction:     direction,
		startupTrials: tpeStartupTrials,
		gamma:         tpeGamma,
		candidates:    tpeCandidates,
	}
}

// Name returns the sampler's configuration name.
func (s *TPE) Name() string { return NameTPE }

// Sample proposes the next assignment. Until startupTrials trials have
// completed it behaves like random search.
func (s *TPE) Sample(space study.SearchSpace, previous []*study.Trial) (study.Params, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	completed := completedValues(previous)
	if len(completed) < s.startupTrials {
		params := make(study.Params, len(space))
		for _, name := range space.Names() {
			params[name] = space[name].Sample(s.rng)
		}
		return params, nil
	}

	good, bad := s.split(completed)

	params := make(study.Params, len(space))
	for _, name := range space.Names() {
		dist := space[name]
		if dist.Kind == study.KindCategorical {
			params[name] = s.sampleCategorical(dist, name, good, bad)
			continue
		}
		params[name] = s.sampleNumeric(dist, name, good, bad)
	}
	return params, nil
}

// split partitions completed trials into good and bad sets by the gamma
// quantile of the objective, best trials first under the direction.
func (s *TPE) split(completed []*study.Trial) ([]*study.Trial, []*study.Trial) {
	sorted := make([]*study.Trial, len(completed))
	copy(sorted, completed)
	sort.Slice(sorted, func(i, j int) bool {
		return s.direction.Better(*sorted[i].Value, *sorted[j].Value)
	})

	nGood := int(math.Ceil(s.gamma * float64(len(sorted))))
	if nGood < 1 {
		nGood = 1
	}
	return sorted[:nGood], sorted[nGood:]
}

// sampleNumeric proposes a float or int parameter by scoring candidates
// drawn from the good set's kernel-density estimate.
func (s *TPE) sampleNumeric(dist study.Distribution, name string, good, bad []*study.Trial) any {
	lo, hi := dist.Low, dist.High
	transform := func(v float64) float64 { return v }
	invert := transform
	if dist.Log {
		transform = math.Log
		invert = math.Exp
		lo, hi = math.Log(dist.Low), math.Log(dist.High)
	}

	goodObs := observations(good, name, transform)
	badObs := observations(bad, name, transform)

	// Without usable observations fall back to an independent draw.
	if len(goodObs) == 0 {
		return dist.Sample(s.rng)
	}

	bandwidth := (hi - lo) / math.Sqrt(float64(len(goodObs))+1)

	bestScore := math.Inf(-1)
	best := goodObs[0]
	for i := 0; i < s.candidates; i++ {
		center := goodObs[s.rng.Intn(len(goodObs))]
		x := center + s.rng.NormFloat64()*bandwidth
		x = math.Min(math.Max(x, lo), hi)

		score := parzen(goodObs, x, bandwidth) / (parzen(badObs, x, bandwidth) + 1e-12)
		if score > bestScore {
			bestScore = score
			best = x
		}
	}

	v := invert(best)
	if dist.Kind == study.KindInt {
		step := float64(dist.Step)
		n := dist.Low + math.Round((v-dist.Low)/step)*step
		n = math.Min(math.Max(n, dist.Low), dist.High)
		return int(n)
	}
	return math.Min(math.Max(v, dist.Low), dist.High)
}

// sampleCategorical proposes a choice weighted by the smoothed ratio of
// its frequency in the good set over the bad set.
func (s *TPE) sampleCategorical(dist study.Distribution, name string, good, bad []*study.Trial) any {
	weights := make([]float64, len(dist.Choices))
	var total float64
	for i, choice := range dist.Choices {
		// Laplace smoothing keeps unseen choices reachable.
		pGood := (categoryCount(good, name, choice) + 1) / float64(len(good)+len(dist.Choices))
		pBad := (categoryCount(bad, name, choice) + 1) / float64(len(bad)+len(dist.Choices))
		weights[i] = pGood / pBad
		total += weights[i]
	}

	r := s.rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r <= 0 {
			return dist.Choices[i]
		}
	}
	return dist.Choices[len(dist.Choices)-1]
}

// observations extracts the transformed values a parameter took in the
// given trials.
func observations(trials []*study.Trial, name string, transform func(float64) float64) []float64 {
	var obs []float64
	for _, t := range trials {
		if f, ok := asFloat(t.Params[name]); ok {
			obs = append(obs, transform(f))
		}
	}
	return obs
}

func categoryCount(trials []*study.Trial, name, choice string) float64 {
	var n float64
	for _, t := range trials {
		if v, ok := t.Params[name].(string); ok && v == choice {
			n++
		}
	}
	return n
}

func asFloat(v any) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case int:
		return float64(f), true
	case int64:
		return float64(f), true
	}
	return 0, false
}

// parzen evaluates a gaussian kernel-density estimate at x.
func parzen(obs []float64, x, bandwidth float64) float64 {
	if len(obs) == 0 || bandwidth <= 0 {
		return 0
	}
	var sum float64
	norm := 1 / (bandwidth * math.Sqrt(2*math.Pi))
	for _, o := range obs {
		z := (x - o) / bandwidth
		sum += norm * math.Exp(-0.5*z*z)
	}
	return sum / float64(len(obs))
}
