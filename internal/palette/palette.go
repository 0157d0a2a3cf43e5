// Package palette maps semantic color keys to concrete colors per theme.
// The registry is an explicit value passed to consumers, never a process
// global, so tests can swap themes without cross-test bleed.
package palette

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
)

// Color is a hex color string of the form #RRGGBB.
type Color string

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Valid reports whether the color is well-formed.
func (c Color) Valid() bool {
	return colorPattern.MatchString(string(c))
}

// DefaultTheme is the theme used when callers do not name one.
const DefaultTheme = "default"

// Registry is a read-mostly lookup from (key, theme) to color.
// Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	themes map[string]map[string]Color
}

// NewRegistry returns a registry seeded with the default theme.
func NewRegistry() *Registry {
	r := &Registry{themes: make(map[string]map[string]Color)}
	r.themes[DefaultTheme] = map[string]Color{
		"primary":   "#1f77b4",
		"secondary": "#ff7f0e",
		"accent":    "#2ca02c",
		"warning":   "#d62728",
		"muted":     "#7f7f7f",
	}
	return r
}

// Register adds or replaces one (key, theme) mapping.
func (r *Registry) Register(theme, key string, c Color) error {
	if theme == "" || key == "" {
		return fmt.Errorf("register color: empty theme or key")
	}
	if !c.Valid() {
		return fmt.Errorf("register color %s/%s: %q is not #RRGGBB", theme, key, c)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.themes[theme]
	if !ok {
		m = make(map[string]Color)
		r.themes[theme] = m
	}
	m[key] = c
	return nil
}

// Lookup resolves a key within a theme. Keys absent from a named theme fall
// back to the default theme before failing.
func (r *Registry) Lookup(theme, key string) (Color, error) {
	if theme == "" {
		theme = DefaultTheme
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.themes[theme]; ok {
		if c, ok := m[key]; ok {
			return c, nil
		}
	}
	if theme != DefaultTheme {
		if c, ok := r.themes[DefaultTheme][key]; ok {
			return c, nil
		}
	}
	return "", fmt.Errorf("no color for key %q in theme %q", key, theme)
}

// Themes returns the registered theme names, sorted.
func (r *Registry) Themes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.themes))
	for name := range r.themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Keys returns the keys of one theme, sorted.
func (r *Registry) Keys(theme string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.themes[theme]))
	for key := range r.themes[theme] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
