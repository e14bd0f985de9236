// Package config loads sheetmyself settings from a YAML file.
//
// Precedence is defaults, then the file, then command-line flags (applied by
// the CLI after Load).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Backend names, mirrored from the store package to keep config free of
// storage imports.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config holds every setting the CLI reads from disk.
type Config struct {
	// DataPath is where the document is stored. Empty selects a per-user
	// default based on Backend.
	DataPath string `yaml:"data_path"`

	// Backend is one of file, sqlite or memory.
	Backend string `yaml:"backend"`

	// PersistOnExit saves the open document when a session ends.
	PersistOnExit bool `yaml:"persist_on_exit"`

	// SaveTimeout bounds each load or save. Zero disables the bound.
	SaveTimeout time.Duration `yaml:"save_timeout"`

	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Backend:       BackendFile,
		PersistOnExit: true,
		SaveTimeout:   5 * time.Second,
		LogLevel:      "warn",
	}
}

// Load reads the config file at path. An empty path returns Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks field values.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendFile, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("backend: unknown backend %q", c.Backend)
	}
	if c.SaveTimeout < 0 {
		return fmt.Errorf("save_timeout: must not be negative, got %s", c.SaveTimeout)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (zerolog.Level, error) {
	if c.LogLevel == "" {
		return zerolog.WarnLevel, nil
	}
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("log_level: %w", err)
	}
	return lvl, nil
}

// Path returns DataPath, or the default location for the backend.
func (c Config) Path() string {
	if c.DataPath != "" {
		return c.DataPath
	}
	name := "sheet.json"
	if c.Backend == BackendSQLite {
		name = "sheet.db"
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return name
	}
	return filepath.Join(dir, "sheetmyself", name)
}
