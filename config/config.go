// Package config loads .locflow.yaml and applies environment overrides.
//
// A missing .locflow.yaml is not an error: every key has a default, and
// LOCFLOW_* environment variables are applied on top of whatever was read.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/minios-linux/locflow/tm"
)

// FileName is the default config file name.
const FileName = ".locflow.yaml"

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverLockfile = "lockfile"
)

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// Config is the top-level .locflow.yaml structure.
type Config struct {
	// SourceLang is the source language of new projects (default "en").
	SourceLang string `yaml:"source_lang,omitempty" env:"LOCFLOW_SOURCE_LANG"`

	Storage           Storage           `yaml:"storage,omitempty"`
	TranslationMemory TranslationMemory `yaml:"translation_memory,omitempty"`
	Log               Log               `yaml:"log,omitempty"`

	// path is the file the config was read from; empty when none existed.
	path string
}

// Storage selects where projects and strings are persisted.
type Storage struct {
	// Driver is "sqlite" or "lockfile".
	Driver string `yaml:"driver,omitempty" env:"LOCFLOW_STORAGE"`
	// DBPath is the SQLite database file, relative to the config root.
	DBPath string `yaml:"db_path,omitempty" env:"LOCFLOW_DB_PATH"`
	// StateDir holds locflow.lock for the lockfile driver.
	StateDir string `yaml:"state_dir,omitempty" env:"LOCFLOW_STATE_DIR"`
}

// TranslationMemory holds suggestion defaults.
type TranslationMemory struct {
	MinSimilarity  float64 `yaml:"min_similarity,omitempty" env:"LOCFLOW_TM_MIN_SIMILARITY"`
	MaxResults     int     `yaml:"max_results,omitempty" env:"LOCFLOW_TM_MAX_RESULTS"`
	Strategy       string  `yaml:"strategy,omitempty" env:"LOCFLOW_TM_STRATEGY"`
	IndexThreshold int     `yaml:"index_threshold,omitempty" env:"LOCFLOW_TM_INDEX_THRESHOLD"`
}

// Log configures the CLI logger.
type Log struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level,omitempty" env:"LOCFLOW_LOG_LEVEL"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		SourceLang: "en",
		Storage: Storage{
			Driver:   DriverSQLite,
			DBPath:   "locflow.db",
			StateDir: ".",
		},
		TranslationMemory: TranslationMemory{
			MinSimilarity:  tm.DefaultMinSimilarity,
			MaxResults:     tm.DefaultMaxResults,
			Strategy:       string(tm.StrategyAuto),
			IndexThreshold: tm.DefaultIndexThreshold,
		},
		Log: Log{Level: "info"},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads .locflow.yaml from rootDir, applies the process environment and
// validates the result. Relative storage paths are resolved against rootDir.
func Load(rootDir string) (*Config, error) {
	return LoadFile(filepath.Join(rootDir, FileName), nil)
}

// LoadFile reads the config at path. environ overrides the process
// environment when non-nil.
func LoadFile(path string, environ map[string]string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
		cfg.path = path
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.resolve(filepath.Dir(path))
	return cfg, nil
}

// decode overlays YAML onto the defaults. Unknown keys are rejected.
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// resolve makes relative storage paths absolute against root.
func (c *Config) resolve(root string) {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	if c.Storage.DBPath != ":memory:" && !filepath.IsAbs(c.Storage.DBPath) {
		c.Storage.DBPath = filepath.Join(abs, c.Storage.DBPath)
	}
	if !filepath.IsAbs(c.Storage.StateDir) {
		c.Storage.StateDir = filepath.Join(abs, c.Storage.StateDir)
	}
}

// Path returns the file the config was read from, or "" if none existed.
func (c *Config) Path() string {
	return c.path
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate reports the first invalid value.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SourceLang) == "" {
		return errors.New("config: source_lang must not be empty")
	}
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.DBPath == "" {
			return errors.New("config: storage.db_path must not be empty")
		}
	case DriverLockfile:
		if c.Storage.StateDir == "" {
			return errors.New("config: storage.state_dir must not be empty")
		}
	default:
		return fmt.Errorf("config: storage.driver %q is not one of %s, %s", c.Storage.Driver, DriverSQLite, DriverLockfile)
	}

	t := c.TranslationMemory
	if !(t.MinSimilarity >= 0 && t.MinSimilarity <= 1) {
		return fmt.Errorf("config: translation_memory.min_similarity %v is outside [0, 1]", t.MinSimilarity)
	}
	if t.MaxResults < 1 {
		return fmt.Errorf("config: translation_memory.max_results %d must be at least 1", t.MaxResults)
	}
	if _, err := tm.ParseStrategy(t.Strategy); err != nil {
		return fmt.Errorf("config: translation_memory.strategy: %w", err)
	}
	if t.IndexThreshold < 0 {
		return fmt.Errorf("config: translation_memory.index_threshold %d must not be negative", t.IndexThreshold)
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil || c.Log.Level == "" {
		return fmt.Errorf("config: log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// TMOptions returns the suggestion engine options for this config.
func (c *Config) TMOptions() []tm.Option {
	strategy, _ := tm.ParseStrategy(c.TranslationMemory.Strategy)
	return []tm.Option{
		tm.WithStrategy(strategy),
		tm.WithIndexThreshold(c.TranslationMemory.IndexThreshold),
		tm.WithDefaults(c.TranslationMemory.MinSimilarity, c.TranslationMemory.MaxResults),
	}
}
