// Package scaffold creates a fresh workspace skeleton: the grandr.yaml
// config, the vault and reports directories, and a .gitignore for the
// generated artifacts.
package scaffold

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fengqlin/GrandR/internal/config"
)

const gitignore = `# generated by grandr
/grandr.db
/grandr.db-wal
/grandr.db-shm
/vault/
/reports/
`

// Init lays out a workspace under dir. It refuses to touch a directory that
// already holds a grandr.yaml; partially-initialized directories are
// completed rather than rejected.
func Init(dir string) error {
	if dir == "" {
		return fmt.Errorf("init workspace: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("init workspace: %w", err)
	}

	cfgPath := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(cfgPath); err == nil {
		return fmt.Errorf("init workspace: %s already exists in %s", config.FileName, dir)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("init workspace: %w", err)
	}

	cfg := config.Default()
	for _, sub := range []string{cfg.VaultDir, cfg.ReportsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("init workspace: %w", err)
		}
	}

	data, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("init workspace: %w", err)
	}
	if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
		return fmt.Errorf("init workspace: %w", err)
	}

	ignorePath := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(ignorePath); os.IsNotExist(err) {
		if err := os.WriteFile(ignorePath, []byte(gitignore), 0o644); err != nil {
			return fmt.Errorf("init workspace: %w", err)
		}
	}

	return nil
}
