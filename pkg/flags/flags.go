// Package flags models the externally supplied feature-flag set that drives
// a reconciliation run. The engine defines no flag names of its own: names
// pass through from the CI environment (or a flags file) and are immutable
// for the duration of one run. Only presence checks and basic type coercion
// (bool/string/int) happen here.
package flags

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Set is an immutable collection of named flag values.
type Set struct {
	values map[string]string
}

// New builds a Set from a plain map, copying it.
func New(values map[string]string) *Set {
	s := &Set{values: make(map[string]string, len(values))}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// FromEnv reads the named variables from the process environment. Variables
// that are unset or empty are omitted from the set.
func FromEnv(names []string) *Set {
	v := viper.New()
	s := &Set{values: make(map[string]string, len(names))}
	for _, name := range names {
		if err := v.BindEnv(name); err != nil {
			continue
		}
		if val := v.GetString(name); val != "" {
			s.values[name] = val
		}
	}
	return s
}

// FromFile loads flags from a TOML or YAML file of flat name/value pairs.
// Scalar values are coerced to strings; nested structures are rejected.
func FromFile(path string) (*Set, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- flags file path is operator-supplied
	if err != nil {
		return nil, fmt.Errorf("failed to read flags file: %w", err)
	}

	raw := make(map[string]interface{})
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse TOML flags file %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse YAML flags file %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported flags file extension: %s", filepath.Ext(path))
	}

	s := &Set{values: make(map[string]string, len(raw))}
	for name, val := range raw {
		coerced, err := coerceScalar(val)
		if err != nil {
			return nil, fmt.Errorf("flag %s: %w", name, err)
		}
		s.values[name] = coerced
	}
	return s, nil
}

func coerceScalar(val interface{}) (string, error) {
	switch v := val.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("unsupported value type %T (flags must be scalars)", val)
	}
}

// Merge returns a new Set where values from override win over s.
func Merge(s, override *Set) *Set {
	merged := &Set{values: make(map[string]string)}
	if s != nil {
		for k, v := range s.values {
			merged.values[k] = v
		}
	}
	if override != nil {
		for k, v := range override.values {
			merged.values[k] = v
		}
	}
	return merged
}

// Has reports whether the flag is present (even with a falsy value).
func (s *Set) Has(name string) bool {
	_, ok := s.values[name]
	return ok
}

// String returns the raw string value of the flag.
func (s *Set) String(name string) (string, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Bool reports whether the flag is present and truthy. Accepted truthy
// spellings are true/1/yes/on, case-insensitive.
func (s *Set) Bool(name string) bool {
	v, ok := s.values[name]
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// Int returns the flag value parsed as an integer.
func (s *Set) Int(name string) (int, bool) {
	v, ok := s.values[name]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Names returns all flag names in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.values))
	for k := range s.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of flags in the set.
func (s *Set) Len() int {
	return len(s.values)
}

// MissingFlagsError reports ${NAME} references that no flag satisfies.
type MissingFlagsError struct {
	Names []string
}

func (e *MissingFlagsError) Error() string {
	return fmt.Sprintf("missing required flags: %s", strings.Join(e.Names, ", "))
}

// Expand substitutes ${NAME} references in template with flag values. All
// unresolvable names are collected into a single MissingFlagsError so the
// caller can surface every missing flag at once.
func (s *Set) Expand(template string) (string, error) {
	var missing []string
	seen := make(map[string]bool)
	out := os.Expand(template, func(name string) string {
		if v, ok := s.values[name]; ok {
			return v
		}
		if !seen[name] {
			seen[name] = true
			missing = append(missing, name)
		}
		return ""
	})
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", &MissingFlagsError{Names: missing}
	}
	return out, nil
}
