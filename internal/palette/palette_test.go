package palette

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultThemeSeeded(t *testing.T) {
	r := NewRegistry()

	c, err := r.Lookup(DefaultTheme, "primary")
	require.NoError(t, err)
	assert.True(t, c.Valid())
}

func TestLookupFallsBackToDefault(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("dark", "primary", "#000000"))

	c, err := r.Lookup("dark", "primary")
	require.NoError(t, err)
	assert.Equal(t, Color("#000000"), c)

	// key absent from "dark", present in default
	c, err = r.Lookup("dark", "accent")
	require.NoError(t, err)
	assert.Equal(t, Color("#2ca02c"), c)
}

func TestLookupUnknownKey(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup(DefaultTheme, "nope")
	require.Error(t, err)
}

func TestEmptyThemeMeansDefault(t *testing.T) {
	r := NewRegistry()
	c, err := r.Lookup("", "muted")
	require.NoError(t, err)
	assert.Equal(t, Color("#7f7f7f"), c)
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register("", "primary", "#123456"))
	assert.Error(t, r.Register("dark", "", "#123456"))
	assert.Error(t, r.Register("dark", "primary", "red"))
	assert.Error(t, r.Register("dark", "primary", "#12345"))
}

func TestRegistriesAreIsolated(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()
	require.NoError(t, a.Register(DefaultTheme, "primary", "#ffffff"))

	c, err := b.Lookup(DefaultTheme, "primary")
	require.NoError(t, err)
	assert.NotEqual(t, Color("#ffffff"), c)
}

func TestThemesAndKeysSorted(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("zebra", "k", "#111111"))
	require.NoError(t, r.Register("alpha", "k", "#222222"))

	assert.Equal(t, []string{"alpha", "default", "zebra"}, r.Themes())
	assert.Equal(t, []string{"accent", "muted", "primary", "secondary", "warning"}, r.Keys(DefaultTheme))
}
