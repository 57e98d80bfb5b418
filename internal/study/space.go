package study

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"
)

// Search-space parsing errors
var (
	// ErrBadDistribution is returned when a parameter expression cannot be parsed.
	ErrBadDistribution = errors.New("invalid distribution expression")

	// ErrEmptySpace is returned when a sweep declares no tunable parameters.
	ErrEmptySpace = errors.New("search space cannot be empty")
)

// DistributionKind identifies how a parameter is sampled.
type DistributionKind string

// Supported distribution kinds
const (
	KindInt         DistributionKind = "int"
	KindFloat       DistributionKind = "float"
	KindCategorical DistributionKind = "categorical"
)

// Distribution describes the domain of a single tunable parameter.
//
// The expression notation follows the sweep-document syntax:
//
//	range(1, 10)                 integer range, inclusive, step 1
//	range(0, 100, 10)            integer range with explicit step
//	interval(0.1, 1.0)           continuous uniform interval
//	tag(log, interval(1e-5, 1))  log-uniform interval
//	choice(sgd, adam, adamw)     categorical choice
type Distribution struct {
	Kind    DistributionKind `json:"kind"`
	Low     float64          `json:"low,omitempty"`
	High    float64          `json:"high,omitempty"`
	Step    int              `json:"step,omitempty"`
	Log     bool             `json:"log,omitempty"`
	Choices []string         `json:"choices,omitempty"`
}

// Sample draws one value from the distribution using the given source.
func (d Distribution) Sample(rng *rand.Rand) any {
	switch d.Kind {
	case KindCategorical:
		return d.Choices[rng.Intn(len(d.Choices))]
	case KindInt:
		steps := int(d.High-d.Low)/d.Step + 1
		return int(d.Low) + d.Step*rng.Intn(steps)
	default:
		if d.Log {
			lo, hi := math.Log(d.Low), math.Log(d.High)
			return math.Exp(lo + rng.Float64()*(hi-lo))
		}
		return d.Low + rng.Float64()*(d.High-d.Low)
	}
}

// GridValues enumerates the distribution for grid search. Continuous
// intervals are discretized into resolution evenly spaced points
// (log-spaced for log intervals).
func (d Distribution) GridValues(resolution int) []any {
	switch d.Kind {
	case KindCategorical:
		vals := make([]any, len(d.Choices))
		for i, c := range d.Choices {
			vals[i] = c
		}
		return vals
	case KindInt:
		var vals []any
		for v := int(d.Low); v <= int(d.High); v += d.Step {
			vals = append(vals, v)
		}
		return vals
	default:
		if resolution < 2 {
			resolution = 2
		}
		vals := make([]any, resolution)
		for i := 0; i < resolution; i++ {
			frac := float64(i) / float64(resolution-1)
			if d.Log {
				lo, hi := math.Log(d.Low), math.Log(d.High)
				vals[i] = math.Exp(lo + frac*(hi-lo))
			} else {
				vals[i] = d.Low + frac*(d.High-d.Low)
			}
		}
		return vals
	}
}

// Contains reports whether a sampled value lies in the distribution's domain.
func (d Distribution) Contains(v any) bool {
	switch d.Kind {
	case KindCategorical:
		s, ok := v.(string)
		if !ok {
			return false
		}
		for _, c := range d.Choices {
			if c == s {
				return true
			}
		}
		return false
	case KindInt:
		n, ok := toInt(v)
		return ok && float64(n) >= d.Low && float64(n) <= d.High
	default:
		f, ok := toFloat(v)
		return ok && f >= d.Low && f <= d.High
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), n == math.Trunc(n)
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
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

// SearchSpace maps dotted parameter paths to their distributions.
type SearchSpace map[string]Distribution

// Names returns the parameter paths in deterministic order.
func (sp SearchSpace) Names() []string {
	names := make([]string, 0, len(sp))
	for name := range sp {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseSpace parses a mapping of parameter paths to distribution
// expressions, as declared under the sweeper's params section.
func ParseSpace(exprs map[string]string) (SearchSpace, error) {
	if len(exprs) == 0 {
		return nil, ErrEmptySpace
	}

	space := make(SearchSpace, len(exprs))
	for name, expr := range exprs {
		dist, err := ParseDistribution(expr)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		space[name] = dist
	}
	return space, nil
}

// ParseDistribution parses one distribution expression.
func ParseDistribution(expr string) (Distribution, error) {
	fn, args, err := splitCall(expr)
	if err != nil {
		return Distribution{}, err
	}

	switch fn {
	case "tag":
		if len(args) != 2 || args[0] != "log" {
			return Distribution{}, fmt.Errorf("%w: tag supports only tag(log, interval(...)), got %q", ErrBadDistribution, expr)
		}
		inner, err := ParseDistribution(args[1])
		if err != nil {
			return Distribution{}, err
		}
		if inner.Kind != KindFloat {
			return Distribution{}, fmt.Errorf("%w: log tag requires an interval, got %q", ErrBadDistribution, expr)
		}
		if inner.Low <= 0 {
			return Distribution{}, fmt.Errorf("%w: log interval requires a positive lower bound", ErrBadDistribution)
		}
		inner.Log = true
		return inner, nil

	case "range":
		if len(args) != 2 && len(args) != 3 {
			return Distribution{}, fmt.Errorf("%w: range takes 2 or 3 arguments, got %q", ErrBadDistribution, expr)
		}
		lo, err1 := strconv.Atoi(args[0])
		hi, err2 := strconv.Atoi(args[1])
		if err1 != nil || err2 != nil {
			return Distribution{}, fmt.Errorf("%w: range bounds must be integers, got %q", ErrBadDistribution, expr)
		}
		step := 1
		if len(args) == 3 {
			step, err = strconv.Atoi(args[2])
			if err != nil || step <= 0 {
				return Distribution{}, fmt.Errorf("%w: range step must be a positive integer, got %q", ErrBadDistribution, expr)
			}
		}
		if hi < lo {
			return Distribution{}, fmt.Errorf("%w: range upper bound below lower bound, got %q", ErrBadDistribution, expr)
		}
		return Distribution{Kind: KindInt, Low: float64(lo), High: float64(hi), Step: step}, nil

	case "interval":
		if len(args) != 2 {
			return Distribution{}, fmt.Errorf("%w: interval takes 2 arguments, got %q", ErrBadDistribution, expr)
		}
		lo, err1 := strconv.ParseFloat(args[0], 64)
		hi, err2 := strconv.ParseFloat(args[1], 64)
		if err1 != nil || err2 != nil {
			return Distribution{}, fmt.Errorf("%w: interval bounds must be numbers, got %q", ErrBadDistribution, expr)
		}
		if hi <= lo {
			return Distribution{}, fmt.Errorf("%w: interval upper bound must exceed lower bound, got %q", ErrBadDistribution, expr)
		}
		return Distribution{Kind: KindFloat, Low: lo, High: hi}, nil

	case "choice":
		if len(args) == 0 {
			return Distribution{}, fmt.Errorf("%w: choice needs at least one option", ErrBadDistribution)
		}
		return Distribution{Kind: KindCategorical, Choices: args}, nil

	default:
		return Distribution{}, fmt.Errorf("%w: unknown function %q", ErrBadDistribution, fn)
	}
}

// splitCall parses "fn(a, b, g(c, d))" into fn and top-level arguments.
func splitCall(expr string) (string, []string, error) {
	expr = strings.TrimSpace(expr)
	open := strings.IndexByte(expr, '(')
	if open <= 0 || !strings.HasSuffix(expr, ")") {
		return "", nil, fmt.Errorf("%w: expected fn(args), got %q", ErrBadDistribution, expr)
	}

	fn := strings.TrimSpace(expr[:open])
	body := expr[open+1 : len(expr)-1]
	if strings.TrimSpace(body) == "" {
		return fn, nil, nil
	}

	var args []string
	depth, start := 0, 0
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return "", nil, fmt.Errorf("%w: unbalanced parentheses in %q", ErrBadDistribution, expr)
			}
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(body[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return "", nil, fmt.Errorf("%w: unbalanced parentheses in %q", ErrBadDistribution, expr)
	}
	args = append(args, strings.TrimSpace(body[start:]))

	return fn, args, nil
}
