package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/sas-client/internal/constants"
	"github.com/coral-mesh/sas-client/internal/safe"
)

// Loader finds, reads and writes the configuration file.
type Loader struct {
	baseDir string
}

// NewLoader creates a loader rooted at, in order of preference:
//  1. the SAS_CONFIG_DIR environment variable,
//  2. ~/.sas,
//  3. /tmp/sas-fallback when there is no home directory.
func NewLoader() *Loader {
	if dir := os.Getenv("SAS_CONFIG_DIR"); dir != "" {
		return &Loader{baseDir: dir}
	}
	if home, err := os.UserHomeDir(); err == nil {
		return &Loader{baseDir: filepath.Join(home, constants.DefaultDir)}
	}
	return &Loader{baseDir: filepath.Join(os.TempDir(), "sas-fallback")}
}

// Path returns the default configuration file path.
func (l *Loader) Path() string {
	return filepath.Join(l.baseDir, constants.ConfigFile)
}

// Load reads path, or the default path when empty, over the defaults and
// applies environment overrides. A missing file yields the defaults. The
// result is validated.
func (l *Loader) Load(path string) (*Config, error) {
	if path == "" {
		path = l.Path()
	}

	cfg := Default()
	data, err := safe.ReadFile(path, nil)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := LoadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path, or the default path when empty.
func (l *Loader) Save(path string, cfg *Config) error {
	if path == "" {
		path = l.Path()
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := safe.WriteFile(path, data, &safe.FileOptions{Perm: 0o644}); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}
