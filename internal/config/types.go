// Package config loads inlinesql settings from defaults, an inlinesql.yaml
// file, INLINESQL_* environment variables and command-line flags.
package config

import (
	"fmt"
	"unicode"

	"github.com/roach88/inlinesql/internal/ir"
	"github.com/roach88/inlinesql/internal/querysql"
)

// Defaults.
const (
	DefaultFormat    = "text"
	DefaultDriver    = "sqlite3"
	DefaultWorkers   = 0
	DefaultCacheSize = 256
)

// Config holds all settings.
type Config struct {
	// Markers lists the characters that introduce a placeholder, e.g. "#$".
	Markers string `koanf:"markers"`

	// Client is the client parameter name for specs that do not set one.
	Client string `koanf:"client"`

	Format  string `koanf:"format"`
	Verbose bool   `koanf:"verbose"`

	// Driver and DSN select the database the run command executes against.
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`

	// Workers bounds parallel compilation; 0 means no limit.
	Workers   int    `koanf:"workers"`
	CacheSize int    `koanf:"cache_size"`
	Catalog   string `koanf:"catalog"`
}

// Defaults returns the settings used when nothing overrides them.
func Defaults() *Config {
	return &Config{
		Markers:   string(querysql.DefaultMarkers),
		Client:    ir.DefaultClient,
		Format:    DefaultFormat,
		Driver:    DefaultDriver,
		Workers:   DefaultWorkers,
		CacheSize: DefaultCacheSize,
	}
}

// Validate checks field values.
func (c *Config) Validate() error {
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("format must be text or json, got %q", c.Format)
	}
	if c.Markers == "" {
		return fmt.Errorf("markers must not be empty")
	}
	for _, r := range c.Markers {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
			return fmt.Errorf("marker %q must be a punctuation character", r)
		}
	}
	if c.Client == "" {
		return fmt.Errorf("client must not be empty")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache_size must be positive, got %d", c.CacheSize)
	}
	return nil
}

// CompileOptions returns the template compiler options the settings imply.
func (c *Config) CompileOptions() []querysql.Option {
	return []querysql.Option{querysql.WithMarkers([]rune(c.Markers)...)}
}

// ApplyDefaults fills spec fields the settings provide defaults for.
func (c *Config) ApplyDefaults(spec *ir.FunctionSpec) {
	if spec.Client == "" && c.Client != ir.DefaultClient {
		spec.Client = c.Client
	}
}
