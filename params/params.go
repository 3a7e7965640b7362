// Package params implements string-keyed parameter maps for index
// construction and query-time configuration.
//
// Parameters arrive as "key=value" pairs, either as a Go map or in the
// textual form "alphaLeft=2.0,expLeft=1". A Manager tracks which keys a
// component has consumed; keys left unclaimed after construction are a
// configuration error and are reported, never silently ignored.
package params

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Params is a set of named configuration values.
type Params map[string]string

// Parse parses the textual form "key1=value1,key2=value2".
// Empty input yields an empty, non-nil Params.
func Parse(s string) (Params, error) {
	p := Params{}
	s = strings.TrimSpace(s)
	if s == "" {
		return p, nil
	}
	for _, part := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("params: malformed entry %q (want key=value)", part)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("params: empty key in entry %q", part)
		}
		p[key] = strings.TrimSpace(value)
	}
	return p, nil
}

// Clone returns a copy of p.
func (p Params) Clone() Params {
	c := make(Params, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// String renders p in the canonical "k=v,k=v" form with sorted keys.
func (p Params) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(p[k])
	}
	return sb.String()
}

// UnclaimedError reports parameter keys that no component consumed.
type UnclaimedError struct {
	Keys []string
}

func (e *UnclaimedError) Error() string {
	return fmt.Sprintf("unknown parameters: %s", strings.Join(e.Keys, ", "))
}

// Manager hands out parameter values and tracks claimed keys.
// It is not safe for concurrent use.
type Manager struct {
	params  Params
	claimed map[string]bool
}

// NewManager creates a Manager over p. The map is not copied; callers must
// not mutate p while the Manager is in use.
func NewManager(p Params) *Manager {
	return &Manager{
		params:  p,
		claimed: make(map[string]bool, len(p)),
	}
}

// Has reports whether key is present.
func (m *Manager) Has(key string) bool {
	_, ok := m.params[key]
	return ok
}

// String returns the value for key, or def if absent.
func (m *Manager) String(key, def string) string {
	v, ok := m.params[key]
	if !ok {
		return def
	}
	m.claimed[key] = true
	return v
}

// Float returns the value for key parsed as float64, or def if absent.
func (m *Manager) Float(key string, def float64) (float64, error) {
	v, ok := m.params[key]
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("params: %s=%q is not a float: %w", key, v, err)
	}
	m.claimed[key] = true
	return f, nil
}

// Int returns the value for key parsed as int, or def if absent.
func (m *Manager) Int(key string, def int) (int, error) {
	v, ok := m.params[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("params: %s=%q is not an integer: %w", key, v, err)
	}
	m.claimed[key] = true
	return n, nil
}

// Bool returns the value for key parsed as bool, or def if absent.
// Accepts the forms strconv.ParseBool accepts.
func (m *Manager) Bool(key string, def bool) (bool, error) {
	v, ok := m.params[key]
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("params: %s=%q is not a bool: %w", key, v, err)
	}
	m.claimed[key] = true
	return b, nil
}

// RequireFloat is like Float but errors when key is absent.
func (m *Manager) RequireFloat(key string) (float64, error) {
	if !m.Has(key) {
		return 0, fmt.Errorf("params: required parameter %s is missing", key)
	}
	return m.Float(key, 0)
}

// RequireInt is like Int but errors when key is absent.
func (m *Manager) RequireInt(key string) (int, error) {
	if !m.Has(key) {
		return 0, fmt.Errorf("params: required parameter %s is missing", key)
	}
	return m.Int(key, 0)
}

// RequireString is like String but errors when key is absent.
func (m *Manager) RequireString(key string) (string, error) {
	if !m.Has(key) {
		return "", fmt.Errorf("params: required parameter %s is missing", key)
	}
	return m.String(key, ""), nil
}

// ExtractExcept claims and returns every parameter whose key is not in skip.
// Used to forward leftover parameters to an inner component (e.g. a wrapper
// passing pruner parameters down to its surrogate tree).
func (m *Manager) ExtractExcept(skip ...string) Params {
	skipSet := make(map[string]bool, len(skip))
	for _, k := range skip {
		skipSet[k] = true
	}
	out := Params{}
	for k, v := range m.params {
		if skipSet[k] {
			continue
		}
		out[k] = v
		m.claimed[k] = true
	}
	return out
}

// CheckUnclaimed returns an *UnclaimedError if any key was never consumed.
func (m *Manager) CheckUnclaimed() error {
	var keys []string
	for k := range m.params {
		if !m.claimed[k] {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	return &UnclaimedError{Keys: keys}
}
