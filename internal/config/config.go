// Package config loads process configuration from, in order of precedence,
// command-line flags, REMEMO_* environment variables, and an optional YAML
// file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	env "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const envPrefix = "REMEMO_"

// Config is the full process configuration.
type Config struct {
	Addr                 string        `koanf:"addr" validate:"required"`
	DatabaseDSN          string        `koanf:"database_dsn" validate:"required"`
	LogLevel             string        `koanf:"log_level" validate:"oneof=debug info warn error"`
	LogFormat            string        `koanf:"log_format" validate:"oneof=text json"`
	TargetRetention      float64       `koanf:"target_retention" validate:"gt=0,lt=1"`
	HousekeepingInterval time.Duration `koanf:"housekeeping_interval" validate:"gt=0"`
}

// Flags returns the flag set defining both the CLI surface and the defaults.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("rememo", pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")
	fs.String("addr", ":8080", "HTTP listen address")
	fs.String("database_dsn", "file:rememo.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", "SQLite DSN")
	fs.String("log_level", "info", "log level: debug, info, warn or error")
	fs.String("log_format", "text", "log format: text or json")
	fs.Float64("target_retention", 0.9, "desired recall probability at review time for FSRS scheduling")
	fs.Duration("housekeeping_interval", 15*time.Minute, "how often the maintenance pass runs")
	return fs
}

// Load parses args and resolves the configuration. Precedence: explicit
// flags over environment over file over flag defaults.
func Load(args []string) (*Config, error) {
	fs := Flags()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return load(fs)
}

func load(fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path, _ := fs.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, envPrefix)), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return nil, fmt.Errorf("load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
