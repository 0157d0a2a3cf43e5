// Package config loads the workspace file (grandr.yaml) that tells the CLI
// where the vault, database, and reports live.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the workspace file looked up in the working directory.
const FileName = "grandr.yaml"

// Config is the workspace layout. Relative paths are resolved against the
// directory containing the config file.
type Config struct {
	VaultDir   string `yaml:"vault_dir"`
	Database   string `yaml:"database"`
	ReportsDir string `yaml:"reports_dir"`
	Theme      string `yaml:"theme"`
}

// Default returns the layout a fresh workspace gets.
func Default() Config {
	return Config{
		VaultDir:   "vault",
		Database:   "grandr.db",
		ReportsDir: "reports",
		Theme:      "default",
	}
}

// Load reads and validates a workspace file. Fields left empty in the file
// keep their defaults; relative paths become absolute.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}

	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg.resolve(base)
	return cfg, nil
}

func (c *Config) validate() error {
	if c.VaultDir == "" {
		return fmt.Errorf("vault_dir must not be empty")
	}
	if c.Database == "" {
		return fmt.Errorf("database must not be empty")
	}
	if c.ReportsDir == "" {
		return fmt.Errorf("reports_dir must not be empty")
	}
	if c.Theme == "" {
		return fmt.Errorf("theme must not be empty")
	}
	return nil
}

func (c *Config) resolve(base string) {
	c.VaultDir = resolvePath(base, c.VaultDir)
	c.Database = resolvePath(base, c.Database)
	c.ReportsDir = resolvePath(base, c.ReportsDir)
}

func resolvePath(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Marshal renders the config as YAML for scaffolding new workspaces.
func (c Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}
