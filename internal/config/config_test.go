package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "vault_dir: data/vault\ndatabase: data/grandr.db\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "data", "vault"), cfg.VaultDir)
	assert.Equal(t, filepath.Join(dir, "data", "grandr.db"), cfg.Database)
	assert.Equal(t, filepath.Join(dir, "reports"), cfg.ReportsDir, "unset fields keep defaults")
	assert.Equal(t, "default", cfg.Theme)
}

func TestLoadKeepsAbsolutePaths(t *testing.T) {
	dir := t.TempDir()
	abs := filepath.Join(dir, "elsewhere", "vault")
	path := writeConfig(t, dir, "vault_dir: "+abs+"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, abs, cfg.VaultDir)
}

func TestLoadRejectsEmptyField(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "theme: \"\"\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, ": not yaml [\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), FileName))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestMarshalRoundTrip(t *testing.T) {
	data, err := Default().Marshal()
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.Theme)
	assert.Equal(t, filepath.Join(dir, "vault"), cfg.VaultDir)
}
