package scaffold

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fengqlin/GrandR/internal/config"
)

func TestInitCreatesWorkspace(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "project")
	require.NoError(t, Init(dir))

	for _, sub := range []string{"vault", "reports"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	cfg, err := config.Load(filepath.Join(dir, config.FileName))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "vault"), cfg.VaultDir)

	ignore, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Contains(t, string(ignore), "/vault/")
}

func TestInitRefusesExistingWorkspace(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(dir))

	err := Init(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestInitKeepsExistingGitignore(t *testing.T) {
	dir := t.TempDir()
	custom := []byte("# mine\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), custom, 0o644))

	require.NoError(t, Init(dir))

	got, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, custom, got)
}
