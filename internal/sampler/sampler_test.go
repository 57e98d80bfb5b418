package sampler

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calderml/sweep/internal/study"
)

func testSpace(t *testing.T) study.SearchSpace {
	t.Helper()
	space, err := study.ParseSpace(map[string]string{
		"hparams.lr":     "tag(log, interval(1e-4, 1e-1))",
		"hparams.epochs": "range(10, 30, 10)",
		"optimizer.name": "choice(sgd, adam)",
	})
	require.NoError(t, err)
	return space
}

func completedTrial(t *testing.T, studyID uuid.UUID, number int, params study.Params, value float64) *study.Trial {
	t.Helper()
	tr, err := study.NewTrial(studyID, number, params)
	require.NoError(t, err)
	tr.State = study.TrialStateComplete
	tr.Value = &value
	return tr
}

func TestNewByName(t *testing.T) {
	t.Parallel()

	for _, name := range []string{NameRandom, NameGrid, NameTPE} {
		s, err := New(name, 42, study.DirectionMaximize)
		require.NoError(t, err)
		assert.Equal(t, name, s.Name())
	}

	_, err := New("cmaes", 42, study.DirectionMaximize)
	assert.ErrorIs(t, err, ErrUnknownSampler)
}

func TestRandomSamplesWithinDomain(t *testing.T) {
	t.Parallel()

	space := testSpace(t)
	s := NewRandom(42)

	for i := 0; i < 100; i++ {
		params, err := s.Sample(space, nil)
		require.NoError(t, err)
		require.Len(t, params, len(space))
		for name, dist := range space {
			assert.True(t, dist.Contains(params[name]),
				"param %s value %v outside domain", name, params[name])
		}
	}
}

func TestRandomIsDeterministicPerSeed(t *testing.T) {
	t.Parallel()

	space := testSpace(t)

	a, err := NewRandom(7).Sample(space, nil)
	require.NoError(t, err)
	b, err := NewRandom(7).Sample(space, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := NewRandom(8).Sample(space, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestGridEnumeratesFullProduct(t *testing.T) {
	t.Parallel()

	space, err := study.ParseSpace(map[string]string{
		"hparams.epochs": "range(10, 30, 10)",
		"optimizer.name": "choice(sgd, adam)",
	})
	require.NoError(t, err)

	s := NewGrid()
	seen := make(map[[2]any]bool)
	for i := 0; i < 6; i++ {
		params, err := s.Sample(space, nil)
		require.NoError(t, err)
		key := [2]any{params["hparams.epochs"], params["optimizer.name"]}
		assert.False(t, seen[key], "grid point %v proposed twice", key)
		seen[key] = true
	}
	assert.Len(t, seen, 6)

	_, err = s.Sample(space, nil)
	assert.ErrorIs(t, err, ErrSpaceExhausted)
}

func TestGridResumesFromPersistedTrials(t *testing.T) {
	t.Parallel()

	space, err := study.ParseSpace(map[string]string{
		"hparams.epochs": "range(10, 30, 10)",
		"optimizer.name": "choice(sgd, adam)",
	})
	require.NoError(t, err)

	studyID := uuid.New()
	seen := make(map[[2]any]bool)
	var previous []*study.Trial

	record := func(params study.Params) {
		key := [2]any{params["hparams.epochs"], params["optimizer.name"]}
		assert.False(t, seen[key], "grid point %v proposed twice", key)
		seen[key] = true
		previous = append(previous, completedTrial(t, studyID, len(previous), params, 0))
	}

	first := NewGrid()
	for i := 0; i < 3; i++ {
		params, err := first.Sample(space, previous)
		require.NoError(t, err)
		record(params)
	}

	// A fresh sampler picks up where the persisted trials left off.
	resumed := NewGrid()
	for i := 0; i < 3; i++ {
		params, err := resumed.Sample(space, previous)
		require.NoError(t, err)
		record(params)
	}
	assert.Len(t, seen, 6)

	_, err = resumed.Sample(space, previous)
	assert.ErrorIs(t, err, ErrSpaceExhausted)
}

func TestTPEFallsBackToRandomDuringStartup(t *testing.T) {
	t.Parallel()

	space := testSpace(t)
	s := NewTPE(42, study.DirectionMaximize)

	params, err := s.Sample(space, nil)
	require.NoError(t, err)
	for name, dist := range space {
		assert.True(t, dist.Contains(params[name]))
	}
}

func TestTPEExploitsGoodRegion(t *testing.T) {
	t.Parallel()

	space, err := study.ParseSpace(map[string]string{
		"x": "interval(0.0, 1.0)",
	})
	require.NoError(t, err)

	// Synthetic history: trials near x=0.9 scored high, the rest low.
	studyID := uuid.New()
	var previous []*study.Trial
	for i := 0; i < 30; i++ {
		x := float64(i) / 30
		value := 0.1
		if x > 0.8 {
			value = 0.9
		}
		previous = append(previous, completedTrial(t, studyID, i, study.Params{"x": x}, value))
	}

	s := NewTPE(42, study.DirectionMaximize)
	var above, total int
	for i := 0; i < 50; i++ {
		params, err := s.Sample(space, previous)
		require.NoError(t, err)
		x := params["x"].(float64)
		require.GreaterOrEqual(t, x, 0.0)
		require.LessOrEqual(t, x, 1.0)
		if x > 0.6 {
			above++
		}
		total++
	}

	// The estimator should concentrate proposals near the good region.
	assert.Greater(t, above, total/2,
		"expected most TPE proposals above 0.6, got %d of %d", above, total)
}

func TestTPEKeepsIntAndCategoricalDomains(t *testing.T) {
	t.Parallel()

	space := testSpace(t)
	studyID := uuid.New()

	var previous []*study.Trial
	for i := 0; i < 20; i++ {
		params := study.Params{
			"hparams.lr":     0.001 * float64(i+1),
			"hparams.epochs": 10 + 10*(i%3),
			"optimizer.name": []string{"sgd", "adam"}[i%2],
		}
		previous = append(previous, completedTrial(t, studyID, i, params, float64(i)))
	}

	s := NewTPE(1, study.DirectionMaximize)
	for i := 0; i < 50; i++ {
		params, err := s.Sample(space, previous)
		require.NoError(t, err)
		for name, dist := range space {
			assert.True(t, dist.Contains(params[name]),
				"param %s value %v outside domain", name, params[name])
		}
		epochs := params["hparams.epochs"].(int)
		assert.Zero(t, (epochs-10)%10, "epochs %d not aligned to step", epochs)
	}
}
