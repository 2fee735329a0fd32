// Package config holds the YAML configuration of a calmesh deployment: the
// composition engine tuning, logging, the account store and the feed
// provider.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/calmesh/composition"
	"github.com/hupe1980/calmesh/logging"
)

// Account store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// EngineConfig tunes the composition engine.
type EngineConfig struct {
	MaxParallel     int           `yaml:"max_parallel"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxEventResults int           `yaml:"max_event_results"`
}

// LoggingConfig selects level and format of the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"` // json or text
	AddSource bool   `yaml:"add_source,omitempty"`
}

// AccountsConfig selects the account store.
type AccountsConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn,omitempty"`
}

// ICalConfig configures the feed provider.
type ICalConfig struct {
	// Refresh is a five-field cron expression.
	Refresh string        `yaml:"refresh"`
	Timeout time.Duration `yaml:"timeout"`
	// AllowFiles permits file:// feed URLs (local use only).
	AllowFiles bool `yaml:"allow_files,omitempty"`
}

// GroupwareConfig configures the internal groupware provider.
type GroupwareConfig struct {
	// AddressDomain is the domain of the internal calendar user addresses
	// (mailto:user<id>@<domain>).
	AddressDomain string `yaml:"address_domain"`
}

// Config is the top-level configuration.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Logging   LoggingConfig   `yaml:"logging"`
	Accounts  AccountsConfig  `yaml:"accounts"`
	ICal      ICalConfig      `yaml:"ical"`
	Groupware GroupwareConfig `yaml:"groupware"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxParallel:     composition.DefaultConfig.MaxParallel,
			Timeout:         composition.DefaultConfig.Timeout,
			MaxEventResults: composition.DefaultConfig.MaxEventResults,
		},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
		Accounts:  AccountsConfig{Driver: DriverMemory},
		ICal:      ICalConfig{Refresh: "*/30 * * * *", Timeout: 15 * time.Second},
		Groupware: GroupwareConfig{AddressDomain: "calmesh.local"},
	}
}

// Normalize fills zero values with defaults so that partial files behave
// like complete ones.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Engine.MaxParallel <= 0 {
		c.Engine.MaxParallel = def.Engine.MaxParallel
	}
	if c.Engine.Timeout < 0 {
		c.Engine.Timeout = 0
	}
	if c.Engine.MaxEventResults < 0 {
		c.Engine.MaxEventResults = 0
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		c.Logging.Format = def.Logging.Format
	}
	c.Accounts.Driver = strings.ToLower(strings.TrimSpace(c.Accounts.Driver))
	if c.Accounts.Driver == "" {
		c.Accounts.Driver = def.Accounts.Driver
	}
	if c.ICal.Refresh == "" {
		c.ICal.Refresh = def.ICal.Refresh
	}
	if c.ICal.Timeout <= 0 {
		c.ICal.Timeout = def.ICal.Timeout
	}
	if c.Groupware.AddressDomain == "" {
		c.Groupware.AddressDomain = def.Groupware.AddressDomain
	}
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	switch c.Accounts.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Accounts.DSN == "" {
			errs = append(errs, errors.New("accounts.dsn is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown accounts.driver %q", c.Accounts.Driver))
	}
	if _, ok := logging.ParseLevel(c.Logging.Level); !ok {
		errs = append(errs, fmt.Errorf("unknown logging.level %q", c.Logging.Level))
	}
	return errors.Join(errs...)
}

// Composition converts the engine section.
func (c *Config) Composition() composition.Config {
	return composition.Config{
		MaxParallel:     c.Engine.MaxParallel,
		Timeout:         c.Engine.Timeout,
		MaxEventResults: c.Engine.MaxEventResults,
	}
}

// Logger builds the configured logger writing to stderr.
func (c *Config) Logger() *logging.CalMeshLogger {
	level, _ := logging.ParseLevel(c.Logging.Level)
	cfg := logging.DefaultLoggerConfig()
	cfg.Level = level
	cfg.Format = c.Logging.Format
	cfg.AddSource = c.Logging.AddSource
	cfg.Component = "calmesh"
	return logging.NewLogger(cfg)
}

// Load reads the configuration at path. A missing file yields the default
// configuration, which is written to path.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			return cfg, Save(path, cfg)
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML, normalizes and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg atomically (temp file and rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calmesh-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
