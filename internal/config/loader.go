package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes environment overrides: INLINESQL_CACHE_SIZE sets
// cache_size.
const EnvPrefix = "INLINESQL_"

// configNames are searched in the working directory when no file is given.
var configNames = []string{"inlinesql.yaml", "inlinesql.yml"}

// Loaded is a Config together with the file it was read from, if any.
type Loaded struct {
	*Config
	FileUsed string
}

// findConfigFile finds the config file to use.
// Priority: explicit path > inlinesql.yaml > inlinesql.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range configNames {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load reads configuration.
// Precedence (highest to lowest): flags > env vars > config file > defaults.
// Only flags the user actually set override lower layers.
func Load(cfgFile string, flags *pflag.FlagSet) (*Loaded, error) {
	k := koanf.New(".")

	// 1. Defaults
	d := Defaults()
	if err := k.Load(confmap.Provider(map[string]any{
		"markers":    d.Markers,
		"client":     d.Client,
		"format":     d.Format,
		"verbose":    d.Verbose,
		"driver":     d.Driver,
		"dsn":        d.DSN,
		"workers":    d.Workers,
		"cache_size": d.CacheSize,
		"catalog":    d.Catalog,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	// 3. Environment: INLINESQL_CACHE_SIZE -> cache_size
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			// Transform kebab-case to snake_case for config keys
			key := strings.ReplaceAll(f.Name, "-", "_")
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Loaded{Config: &cfg, FileUsed: used}, nil
}
