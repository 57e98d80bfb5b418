package study

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDistribution(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		expr    string
		want    Distribution
		wantErr bool
	}{
		{
			name: "int range",
			expr: "range(1, 10)",
			want: Distribution{Kind: KindInt, Low: 1, High: 10, Step: 1},
		},
		{
			name: "int range with step",
			expr: "range(0, 100, 10)",
			want: Distribution{Kind: KindInt, Low: 0, High: 100, Step: 10},
		},
		{
			name: "interval",
			expr: "interval(0.1, 1.0)",
			want: Distribution{Kind: KindFloat, Low: 0.1, High: 1.0},
		},
		{
			name: "log interval",
			expr: "tag(log, interval(1e-5, 1e-1))",
			want: Distribution{Kind: KindFloat, Low: 1e-5, High: 1e-1, Log: true},
		},
		{
			name: "choice",
			expr: "choice(sgd, adam, adamw)",
			want: Distribution{Kind: KindCategorical, Choices: []string{"sgd", "adam", "adamw"}},
		},
		{name: "unknown function", expr: "normal(0, 1)", wantErr: true},
		{name: "not a call", expr: "0.5", wantErr: true},
		{name: "unbalanced parens", expr: "range(1, 10", wantErr: true},
		{name: "inverted interval", expr: "interval(1.0, 0.1)", wantErr: true},
		{name: "inverted range", expr: "range(10, 1)", wantErr: true},
		{name: "log on range", expr: "tag(log, range(1, 10))", wantErr: true},
		{name: "log with nonpositive bound", expr: "tag(log, interval(0, 1))", wantErr: true},
		{name: "empty choice", expr: "choice()", wantErr: true},
		{name: "float range bound", expr: "range(0.5, 10)", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDistribution(tt.expr)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadDistribution)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSpace(t *testing.T) {
	t.Parallel()

	space, err := ParseSpace(map[string]string{
		"hparams.lr":       "tag(log, interval(1e-4, 1e-1))",
		"hparams.momentum": "interval(0.5, 0.99)",
		"optimizer.name":   "choice(sgd, adam)",
		"hparams.epochs":   "range(10, 50, 10)",
	})
	require.NoError(t, err)
	require.Len(t, space, 4)
	assert.Equal(t,
		[]string{"hparams.epochs", "hparams.lr", "hparams.momentum", "optimizer.name"},
		space.Names())

	_, err = ParseSpace(nil)
	assert.ErrorIs(t, err, ErrEmptySpace)

	_, err = ParseSpace(map[string]string{"lr": "bogus"})
	assert.ErrorIs(t, err, ErrBadDistribution)
}

func TestDistributionSampleStaysInDomain(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))

	dists := []Distribution{
		{Kind: KindInt, Low: 1, High: 10, Step: 1},
		{Kind: KindInt, Low: 0, High: 100, Step: 10},
		{Kind: KindFloat, Low: 0.1, High: 1.0},
		{Kind: KindFloat, Low: 1e-5, High: 1e-1, Log: true},
		{Kind: KindCategorical, Choices: []string{"sgd", "adam"}},
	}

	for _, d := range dists {
		for i := 0; i < 200; i++ {
			v := d.Sample(rng)
			assert.True(t, d.Contains(v), "sample %v outside domain of %+v", v, d)
		}
	}
}

func TestDistributionSampleStepAlignment(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	d := Distribution{Kind: KindInt, Low: 0, High: 100, Step: 10}

	for i := 0; i < 100; i++ {
		v := d.Sample(rng).(int)
		assert.Zero(t, v%10, "sample %d not aligned to step", v)
	}
}

func TestDistributionGridValues(t *testing.T) {
	t.Parallel()

	ints := Distribution{Kind: KindInt, Low: 0, High: 4, Step: 2}.GridValues(0)
	assert.Equal(t, []any{0, 2, 4}, ints)

	cats := Distribution{Kind: KindCategorical, Choices: []string{"a", "b"}}.GridValues(0)
	assert.Equal(t, []any{"a", "b"}, cats)

	floats := Distribution{Kind: KindFloat, Low: 0, High: 1}.GridValues(5)
	require.Len(t, floats, 5)
	assert.Equal(t, 0.0, floats[0])
	assert.Equal(t, 1.0, floats[4])

	logs := Distribution{Kind: KindFloat, Low: 0.01, High: 1, Log: true}.GridValues(3)
	require.Len(t, logs, 3)
	assert.InDelta(t, 0.01, logs[0].(float64), 1e-12)
	assert.InDelta(t, 0.1, logs[1].(float64), 1e-12)
	assert.InDelta(t, 1.0, logs[2].(float64), 1e-12)
}
