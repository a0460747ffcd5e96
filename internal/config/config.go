// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

// Package config loads biogate configuration from defaults, a YAML file and
// command-line flags, in increasing precedence.
package config

import (
	"errors"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/biogate/biogate/internal/biometric"
	"github.com/biogate/biogate/internal/lockout"
	"github.com/biogate/biogate/internal/logging"
	"github.com/biogate/biogate/internal/registry"
	"github.com/biogate/biogate/internal/restart"
	"github.com/biogate/biogate/internal/session"
)

// Log configures logging.
type Log struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// Discovery configures backend discovery.
type Discovery struct {
	// Workers bounds concurrent initializations; zero leaves them unbounded.
	Workers     int           `koanf:"workers"`
	InitTimeout time.Duration `koanf:"init_timeout"`
	Exclude     []string      `koanf:"exclude"`
}

// Session configures authentication defaults.
type Session struct {
	Policy        string `koanf:"policy"`
	DegradeAll    bool   `koanf:"degrade_all"`
	RestartBudget int    `koanf:"restart_budget"`
	// Timeout bounds one authentication; zero waits indefinitely.
	Timeout time.Duration `koanf:"timeout"`
}

// Metrics configures the observability server.
type Metrics struct {
	// Addr is the listen address; empty disables the server.
	Addr string `koanf:"addr"`
}

// Config is the complete biogate configuration.
type Config struct {
	// Platform is the capability level backends are matched against.
	Platform string `koanf:"platform"`
	// Profile is a simulated device profile to install.
	Profile   string         `koanf:"profile"`
	Log       Log            `koanf:"log"`
	Discovery Discovery      `koanf:"discovery"`
	Session   Session        `koanf:"session"`
	Lockout   lockout.Config `koanf:"lockout"`
	Metrics   Metrics        `koanf:"metrics"`
}

// Defaults returns the built-in configuration.
func Defaults() map[string]any {
	return map[string]any{
		"platform":               registry.DefaultPlatform,
		"log.format":             "text",
		"log.level":              "info",
		"discovery.workers":      0,
		"discovery.init_timeout": registry.DefaultInitTimeout.String(),
		"session.policy":         session.PolicyAny.String(),
		"session.degrade_all":    true,
		"session.restart_budget": restart.DefaultBudget,
		"lockout.driver":         lockout.DriverSQLite,
		"lockout.redis_prefix":   "biogate:",
	}
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"platform":       "platform",
	"profile":        "profile",
	"log-format":     "log.format",
	"log-level":      "log.level",
	"workers":        "discovery.workers",
	"init-timeout":   "discovery.init_timeout",
	"exclude":        "discovery.exclude",
	"policy":         "session.policy",
	"degrade-all":    "session.degrade_all",
	"restart-budget": "session.restart_budget",
	"timeout":        "session.timeout",
	"lockout-driver": "lockout.driver",
	"lockout-path":   "lockout.path",
	"redis-addr":     "lockout.redis_addr",
	"postgres-dsn":   "lockout.postgres_dsn",
	"migrate":        "lockout.migrate",
	"metrics-addr":   "metrics.addr",
}

// FlagKey returns the configuration key bound to a flag name.
func FlagKey(flag string) (string, bool) {
	k, ok := flagKeys[flag]
	return k, ok
}

func invalid(key string, value any) oops.OopsErrorBuilder {
	return oops.Code(biometric.CodeInvalidConfig).With("key", key).With("value", value)
}

// Load builds a Config. path may be empty; a missing file is an error only
// when required is set. flags may be nil; only flags the user changed
// override file values.
func Load(path string, required bool, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	for key, v := range Defaults() {
		if err := k.Set(key, v); err != nil {
			return nil, oops.Wrapf(err, "set default %s", key)
		}
	}

	if path != "" {
		_, statErr := os.Stat(path)
		switch {
		case statErr == nil:
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, invalid("config", path).Wrapf(err, "load config file")
			}
		case errors.Is(statErr, fs.ErrNotExist) && !required:
		default:
			return nil, invalid("config", path).Wrapf(statErr, "read config file")
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Wrapf(err, "load flags")
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, invalid("config", path).Wrapf(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if _, err := semver.NewVersion(c.Platform); err != nil {
		return invalid("platform", c.Platform).Wrapf(err, "invalid platform level")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", c.Log.Format).Errorf("log format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Discovery.Workers < 0 {
		return invalid("discovery.workers", c.Discovery.Workers).Errorf("discovery workers must not be negative")
	}
	if c.Discovery.InitTimeout <= 0 {
		return invalid("discovery.init_timeout", c.Discovery.InitTimeout).Errorf("init timeout must be positive")
	}
	if _, err := session.ParsePolicy(c.Session.Policy); err != nil {
		return err
	}
	if c.Session.RestartBudget < 0 {
		return invalid("session.restart_budget", c.Session.RestartBudget).Errorf("restart budget must not be negative")
	}
	if c.Session.Timeout < 0 {
		return invalid("session.timeout", c.Session.Timeout).Errorf("session timeout must not be negative")
	}
	if !slices.Contains(lockout.Drivers(), c.Lockout.Driver) {
		return invalid("lockout.driver", c.Lockout.Driver).Errorf("lockout driver must be one of %v", lockout.Drivers())
	}
	switch c.Lockout.Driver {
	case lockout.DriverRedis:
		if c.Lockout.RedisAddr == "" {
			return invalid("lockout.redis_addr", "").Errorf("redis lockout driver needs an address")
		}
	case lockout.DriverPostgres:
		if c.Lockout.PostgresDSN == "" {
			return invalid("lockout.postgres_dsn", "").Errorf("postgres lockout driver needs a DSN")
		}
	}
	return nil
}

// Policy returns the parsed confirmation policy.
func (c *Config) Policy() session.Policy {
	p, err := session.ParsePolicy(c.Session.Policy)
	if err != nil {
		return session.PolicyAny
	}
	return p
}

// RegistryOptions translates the discovery settings into registry options.
func (c *Config) RegistryOptions() []registry.Option {
	return []registry.Option{
		registry.WithPlatform(c.Platform),
		registry.WithWorkers(c.Discovery.Workers),
		registry.WithInitTimeout(c.Discovery.InitTimeout),
		registry.WithExclude(c.Discovery.Exclude...),
	}
}
