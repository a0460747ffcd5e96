// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package main

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/biogate/biogate/internal/backend"
	"github.com/biogate/biogate/internal/config"
	"github.com/biogate/biogate/internal/engine"
	"github.com/biogate/biogate/internal/lockout"
	"github.com/biogate/biogate/internal/logging"
	"github.com/biogate/biogate/internal/registry"
	"github.com/biogate/biogate/internal/simulator"
	"github.com/biogate/biogate/internal/xdg"
)

// loadConfig resolves the config file and merges it with cmd's flags. An
// explicit --config must exist; the XDG default may be absent.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, required := configFile, configFile != ""
	if path == "" {
		if p, err := xdg.ConfigFile(); err == nil {
			path = p
		}
	}
	cfg, err := config.Load(path, required, cmd.Flags())
	if err != nil {
		return nil, oops.With("operation", "load configuration").Wrap(err)
	}
	return cfg, nil
}

// setupLogging installs the configured logger as the default.
func setupLogging(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	level, _ := logging.ParseLevel(cfg.Log.Level)
	logger := logging.Setup("biogate", version, cfg.Log.Format, cmd.ErrOrStderr(), logging.WithLevel(level))
	slog.SetDefault(logger)
	return logger
}

// openStore opens the configured lockout store, placing the SQLite file
// under the XDG data directory unless a path is set.
func openStore(ctx context.Context, cfg *config.Config) (lockout.Store, error) {
	lc := cfg.Lockout
	if lc.Driver == lockout.DriverSQLite && lc.Path == "" {
		p, err := xdg.LockoutDBPath()
		if err != nil {
			return nil, err
		}
		if err := xdg.EnsureDir(filepath.Dir(p)); err != nil {
			return nil, err
		}
		lc.Path = p
	}
	store, err := lockout.Open(ctx, lc)
	if err != nil {
		return nil, oops.With("driver", lc.Driver).Wrap(err)
	}
	return store, nil
}

// runtime is everything a command needs to talk to backends.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
	store  lockout.Store
	reg    *registry.Registry
	engine *engine.Engine
}

// newRuntime loads configuration, opens the lockout store, installs the
// device profile and builds the engine. Nothing is discovered yet.
func newRuntime(cmd *cobra.Command) (*runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := setupLogging(cmd, cfg)

	var profile *simulator.Profile
	if cfg.Profile != "" {
		profile, err = simulator.LoadProfile(cfg.Profile)
		if err != nil {
			return nil, err
		}
		if profile.Platform != "" && !cmd.Flags().Changed("platform") && cfg.Platform == registry.DefaultPlatform {
			cfg.Platform = profile.Platform
		}
	}

	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}

	opts := append([]registry.Option{
		registry.WithLogger(logger),
		registry.WithEnv(backend.Env{Store: store, Logger: logger}),
	}, cfg.RegistryOptions()...)
	reg, err := registry.New(opts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	if profile != nil {
		if err := simulator.Install(reg, profile); err != nil {
			_ = store.Close()
			return nil, err
		}
		logger.Debug("device profile installed", "profile", cfg.Profile, "sensors", len(profile.Sensors))
	} else {
		logger.Warn("no device profile configured; no backend drivers are bound")
	}

	return &runtime{
		cfg:    cfg,
		logger: logger,
		store:  store,
		reg:    reg,
		engine: engine.New(reg, store, engine.WithLogger(logger)),
	}, nil
}

// Close shuts the engine down and releases the store.
func (r *runtime) Close() {
	r.engine.Close()
	if err := r.store.Close(); err != nil {
		r.logger.Warn("closing lockout store", "error", err)
	}
}
