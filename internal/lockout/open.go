// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package lockout

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/biogate/biogate/internal/biometric"
)

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Drivers lists the accepted driver names.
func Drivers() []string {
	return []string{DriverMemory, DriverSQLite, DriverRedis, DriverPostgres}
}

// Config selects and configures a Store.
type Config struct {
	Driver string `koanf:"driver"`
	// Path is the SQLite database file.
	Path string `koanf:"path"`
	// RedisAddr and RedisPrefix configure the Redis store.
	RedisAddr   string `koanf:"redis_addr"`
	RedisPrefix string `koanf:"redis_prefix"`
	// PostgresDSN configures the PostgreSQL store.
	PostgresDSN string `koanf:"postgres_dsn"`
	// Migrate applies the PostgreSQL schema on open.
	Migrate bool `koanf:"migrate"`
}

// Open builds the Store cfg selects.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite, "":
		return OpenSQLite(ctx, cfg.Path)
	case DriverRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, storeError(DriverRedis, "ping", err)
		}
		return NewRedisStore(client, cfg.RedisPrefix), nil
	case DriverPostgres:
		s, err := NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			if err := s.Migrate(ctx); err != nil {
				_ = s.Close()
				return nil, err
			}
		}
		return s, nil
	default:
		return nil, oops.Code(biometric.CodeInvalidConfig).
			With("driver", cfg.Driver).
			Errorf("unknown lockout driver %q", cfg.Driver)
	}
}
