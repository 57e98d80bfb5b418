package compose

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Composition errors
var (
	// ErrMalformedDefaults is returned when a defaults entry is not a
	// single group/variant binding or the _self_ marker.
	ErrMalformedDefaults = errors.New("malformed defaults entry")

	// ErrDuplicateGroup is returned when the same group is bound twice.
	ErrDuplicateGroup = errors.New("duplicate group in defaults")

	// ErrVariantNotFound is returned when a bound variant has no
	// configuration file under the config directory.
	ErrVariantNotFound = errors.New("variant not found")

	// ErrBadOverridePath is returned for override directives that
	// address a path absent from the composed configuration.
	ErrBadOverridePath = errors.New("override path does not exist")
)

// selfMarker positions the document's own body within the defaults order.
const selfMarker = "_self_"

// overridePrefix marks a defaults entry that replaces an already-bound group.
const overridePrefix = "override "

// DefaultsEntry is one element of the defaults list: either the _self_
// marker or a binding of a configuration group to a named variant.
type DefaultsEntry struct {
	Group    string
	Variant  string
	Self     bool
	Override bool
}

// Document is a parsed tuning document: the ordered defaults list and
// the document's own body (everything except the defaults key).
type Document struct {
	Defaults []DefaultsEntry
	Body     map[string]any
}

// ParseDocument parses YAML content into a Document.
func ParseDocument(content []byte) (*Document, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	doc := &Document{Body: make(map[string]any, len(raw))}
	for k, v := range raw {
		if k != "defaults" {
			doc.Body[k] = v
		}
	}

	rawDefaults, ok := raw["defaults"]
	if !ok {
		return doc, nil
	}
	list, ok := rawDefaults.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: defaults must be a sequence", ErrMalformedDefaults)
	}

	seen := make(map[string]bool)
	for _, item := range list {
		entry, err := parseDefaultsEntry(item)
		if err != nil {
			return nil, err
		}
		if !entry.Self {
			if seen[entry.Group] && !entry.Override {
				return nil, fmt.Errorf("%w: %q", ErrDuplicateGroup, entry.Group)
			}
			if entry.Override && !seen[entry.Group] {
				return nil, fmt.Errorf("%w: override of unbound group %q", ErrMalformedDefaults, entry.Group)
			}
			seen[entry.Group] = true
		}
		doc.Defaults = append(doc.Defaults, entry)
	}

	return doc, nil
}

// LoadDocument reads and parses a tuning document from disk.
func LoadDocument(path string) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tuning document: %w", err)
	}
	return ParseDocument(content)
}

func parseDefaultsEntry(item any) (DefaultsEntry, error) {
	switch v := item.(type) {
	case string:
		if v == selfMarker {
			return DefaultsEntry{Self: true}, nil
		}
		return DefaultsEntry{}, fmt.Errorf("%w: bare entry %q", ErrMalformedDefaults, v)
	case map[string]any:
		if len(v) != 1 {
			return DefaultsEntry{}, fmt.Errorf(
				"%w: entry must bind exactly one group to one variant, got %d bindings",
				ErrMalformedDefaults, len(v))
		}
		for group, variant := range v {
			name, ok := variant.(string)
			if !ok {
				return DefaultsEntry{}, fmt.Errorf(
					"%w: variant for group %q must be a string", ErrMalformedDefaults, group)
			}
			entry := DefaultsEntry{Group: group, Variant: name}
			if strings.HasPrefix(group, overridePrefix) {
				entry.Group = strings.TrimPrefix(group, overridePrefix)
				entry.Override = true
			}
			return entry, nil
		}
	}
	return DefaultsEntry{}, fmt.Errorf("%w: unsupported entry type %T", ErrMalformedDefaults, item)
}

// Resolver composes documents against a directory of group variant files.
type Resolver struct {
	// ConfigDir is the root of the config search path; group variants
	// live at ConfigDir/<group>/<variant>.yaml.
	ConfigDir string
}

// NewResolver creates a Resolver rooted at configDir.
func NewResolver(configDir string) *Resolver {
	return &Resolver{ConfigDir: configDir}
}

// Resolve merges the document's defaults in order into a single
// configuration tree. Group files are nested under their group path;
// a group path may contain slashes for nested sub-configs. The
// document body merges at the _self_ position, or last when no marker
// is present. Later entries win key conflicts.
func (r *Resolver) Resolve(doc *Document) (map[string]any, error) {
	tree := make(map[string]any)

	sawSelf := false
	for _, entry := range doc.Defaults {
		if entry.Self {
			sawSelf = true
			deepMerge(tree, doc.Body)
			continue
		}

		variant, err := r.loadVariant(entry.Group, entry.Variant)
		if err != nil {
			return nil, err
		}
		deepMerge(tree, nest(strings.Split(entry.Group, "/"), variant))
	}

	if !sawSelf {
		deepMerge(tree, doc.Body)
	}

	return tree, nil
}

// loadVariant reads ConfigDir/<group>/<variant>.yaml.
func (r *Resolver) loadVariant(group, variant string) (map[string]any, error) {
	path := filepath.Join(r.ConfigDir, filepath.FromSlash(group), variant+".yaml")
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: group %q has no variant %q (looked in %s)",
				ErrVariantNotFound, group, variant, path)
		}
		return nil, fmt.Errorf("failed to read variant file %s: %w", path, err)
	}

	var tree map[string]any
	if err := yaml.Unmarshal(content, &tree); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	return tree, nil
}

// nest wraps a tree under the given key path.
func nest(path []string, tree map[string]any) map[string]any {
	for i := len(path) - 1; i >= 0; i-- {
		tree = map[string]any{path[i]: tree}
	}
	return tree
}

// deepMerge merges src into dst. Nested maps merge recursively; any
// other value in src replaces the value in dst.
func deepMerge(dst, src map[string]any) {
	for k, v := range src {
		if srcMap, ok := v.(map[string]any); ok {
			if dstMap, ok := dst[k].(map[string]any); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
			// Copy so later merges into dst never mutate src.
			merged := make(map[string]any, len(srcMap))
			deepMerge(merged, srcMap)
			dst[k] = merged
			continue
		}
		dst[k] = v
	}
}

// ApplyOverride sets a dotted-path key in the composed tree, creating
// intermediate maps only when the parent path already exists.
func ApplyOverride(tree map[string]any, path string, value any) error {
	keys := strings.Split(path, ".")
	node := tree
	for _, key := range keys[:len(keys)-1] {
		next, ok := node[key]
		if !ok {
			return fmt.Errorf("%w: %q", ErrBadOverridePath, path)
		}
		nextMap, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %q addresses through a non-mapping node", ErrBadOverridePath, path)
		}
		node = nextMap
	}
	node[keys[len(keys)-1]] = value
	return nil
}

// Lookup resolves a dotted path in the composed tree.
func Lookup(tree map[string]any, path string) (any, bool) {
	keys := strings.Split(path, ".")
	var node any = tree
	for _, key := range keys {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// Encode serializes a composed tree back to YAML.
func Encode(tree map[string]any) ([]byte, error) {
	return yaml.Marshal(tree)
}
