package compose

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Interpolation errors
var (
	// ErrUnresolvable is returned when a placeholder references a path
	// absent from the composed tree or an unset environment variable.
	ErrUnresolvable = errors.New("unresolvable placeholder")

	// ErrBadPlaceholder is returned for syntactically invalid placeholders.
	ErrBadPlaceholder = errors.New("invalid placeholder")

	// ErrInterpolationCycle is returned when placeholders resolve to
	// each other without terminating.
	ErrInterpolationCycle = errors.New("interpolation cycle")
)

// maxInterpolationDepth bounds chained placeholder resolution.
const maxInterpolationDepth = 10

// Interpolator resolves ${...} expressions against a composed tree.
// The clock and environment are injectable for tests.
type Interpolator struct {
	Now       func() time.Time
	LookupEnv func(string) (string, bool)
}

// NewInterpolator creates an Interpolator using the system clock and
// process environment.
func NewInterpolator() *Interpolator {
	return &Interpolator{
		Now:       time.Now,
		LookupEnv: os.LookupEnv,
	}
}

// Tree resolves every string value in the composed tree in place.
func (ip *Interpolator) Tree(tree map[string]any) error {
	return ip.walk(tree, tree, 0)
}

func (ip *Interpolator) walk(tree map[string]any, node map[string]any, depth int) error {
	for k, v := range node {
		switch val := v.(type) {
		case string:
			resolved, err := ip.resolve(val, tree, depth)
			if err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			node[k] = resolved
		case map[string]any:
			if err := ip.walk(tree, val, depth); err != nil {
				return err
			}
		case []any:
			for i, item := range val {
				if s, ok := item.(string); ok {
					resolved, err := ip.resolve(s, tree, depth)
					if err != nil {
						return fmt.Errorf("key %q: %w", k, err)
					}
					val[i] = resolved
				}
			}
		}
	}
	return nil
}

// String resolves the placeholders of a single template string against
// the composed tree. The result is always a string; non-string values
// referenced by placeholders are formatted.
func (ip *Interpolator) String(template string, tree map[string]any) (string, error) {
	v, err := ip.resolve(template, tree, 0)
	if err != nil {
		return "", err
	}
	return stringify(v), nil
}

// resolve expands placeholders in s. A string that consists of exactly
// one placeholder keeps the referenced value's type; mixed content is
// concatenated as a string.
func (ip *Interpolator) resolve(s string, tree map[string]any, depth int) (any, error) {
	if depth > maxInterpolationDepth {
		return nil, ErrInterpolationCycle
	}
	if !strings.Contains(s, "${") {
		return s, nil
	}

	var b strings.Builder
	rest := s
	var only any
	placeholders := 0

	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated %q", ErrBadPlaceholder, s)
		}

		b.WriteString(rest[:start])
		expr := rest[start+2 : start+end]
		rest = rest[start+end+1:]

		value, err := ip.eval(expr, tree, depth)
		if err != nil {
			return nil, err
		}
		placeholders++
		only = value
		b.WriteString(stringify(value))
	}

	// `${a.b}` alone preserves the referenced value's type.
	if placeholders == 1 && b.String() == stringify(only) {
		return only, nil
	}
	return b.String(), nil
}

// eval resolves one placeholder expression.
func (ip *Interpolator) eval(expr string, tree map[string]any, depth int) (any, error) {
	switch {
	case strings.HasPrefix(expr, "now:"):
		layout, err := strftimeToLayout(strings.TrimPrefix(expr, "now:"))
		if err != nil {
			return nil, err
		}
		return ip.Now().Format(layout), nil

	case strings.HasPrefix(expr, "env:"):
		name := strings.TrimPrefix(expr, "env:")
		value, ok := ip.LookupEnv(name)
		if !ok {
			return nil, fmt.Errorf("%w: environment variable %q", ErrUnresolvable, name)
		}
		return value, nil

	case expr == "":
		return nil, fmt.Errorf("%w: empty expression", ErrBadPlaceholder)

	default:
		value, ok := Lookup(tree, expr)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnresolvable, expr)
		}
		// Referenced strings may themselves contain placeholders.
		if s, ok := value.(string); ok {
			return ip.resolve(s, tree, depth+1)
		}
		return value, nil
	}
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}

// strftime directives understood by ${now:...} templates.
var strftimeDirectives = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'H': "15",
	'M': "04",
	'S': "05",
	'b': "Jan",
	'B': "January",
	'a': "Mon",
	'A': "Monday",
	'p': "PM",
	'j': "002",
	'%': "%",
}

// strftimeToLayout converts a strftime format string into a Go time layout.
func strftimeToLayout(format string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			b.WriteByte(format[i])
			continue
		}
		i++
		if i >= len(format) {
			return "", fmt.Errorf("%w: trailing %% in time format %q", ErrBadPlaceholder, format)
		}
		layout, ok := strftimeDirectives[format[i]]
		if !ok {
			return "", fmt.Errorf("%w: unsupported time directive %%%c", ErrBadPlaceholder, format[i])
		}
		b.WriteString(layout)
	}
	return b.String(), nil
}
