// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 rust-auth-back Contributors

// Package config loads service configuration from defaults, an optional
// YAML file, and command-line flags, in increasing order of precedence.
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config holds all service configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Database DatabaseConfig `koanf:"database"`
	Session  SessionConfig  `koanf:"session"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Listen string `koanf:"listen"`
}

// MetricsConfig configures the observability listener.
type MetricsConfig struct {
	Listen string `koanf:"listen"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// SessionConfig configures the in-memory session store.
type SessionConfig struct {
	IdleTimeout   time.Duration `koanf:"idle_timeout"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
	CookieName    string        `koanf:"cookie_name"`
	CookieSecure  bool          `koanf:"cookie_secure"`
}

// LogConfig configures structured logging output.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the configuration used when no file or flags override it.
func Default() Config {
	return Config{
		Server:   ServerConfig{Listen: ":3000"},
		Metrics:  MetricsConfig{Listen: ":9090"},
		Database: DatabaseConfig{URL: "postgres://localhost:5432/auth?sslmode=disable"},
		Session: SessionConfig{
			IdleTimeout:   time.Hour,
			SweepInterval: time.Minute,
			CookieName:    "id",
			CookieSecure:  false,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds a Config from defaults, then the YAML file at path (if path is
// non-empty and the file exists), then any changed flags in flags. A missing
// file at an explicitly given path is an error; an empty path is not.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, oops.Code("CONFIG_FILE_NOT_FOUND").
				With("path", path).
				Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "load flags").
				Wrap(err)
		}
	}

	// Unmarshal only overrides keys present in the loaded layers, so the
	// defaults above survive for everything else.
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_PARSE_FAILED").Wrap(err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Listen == "" {
		return oops.Code("CONFIG_INVALID").Errorf("server.listen must not be empty")
	}
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url must not be empty")
	}
	if c.Session.IdleTimeout <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("session.idle_timeout must be positive, got %s", c.Session.IdleTimeout)
	}
	if c.Session.SweepInterval <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("session.sweep_interval must be positive, got %s", c.Session.SweepInterval)
	}
	if c.Session.CookieName == "" {
		return oops.Code("CONFIG_INVALID").Errorf("session.cookie_name must not be empty")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return oops.Code("CONFIG_INVALID").Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}
