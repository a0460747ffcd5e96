// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package lockout

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biogate/biogate/internal/biometric"
	"github.com/biogate/biogate/pkg/errutil"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "user_unlock_device-BIOMETRIC_FINGERPRINT", Key(biometric.Fingerprint))
	assert.Equal(t, "user_unlock_device-BIOMETRIC_HEARTRATE", Key(biometric.HeartRate))
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

// storeContract runs the behavior every Store must share.
func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	locked, err := s.IsPermanentlyLocked(ctx, biometric.Face)
	require.NoError(t, err)
	assert.False(t, locked)

	require.NoError(t, s.SetPermanentlyLocked(ctx, biometric.Face))
	require.NoError(t, s.SetPermanentlyLocked(ctx, biometric.Face), "setting twice is allowed")

	locked, err = s.IsPermanentlyLocked(ctx, biometric.Face)
	require.NoError(t, err)
	assert.True(t, locked)

	locked, err = s.IsPermanentlyLocked(ctx, biometric.Fingerprint)
	require.NoError(t, err)
	assert.False(t, locked, "flags are per type")

	got, err := Locked(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, []biometric.Type{biometric.Face}, got)

	require.NoError(t, s.Reset(ctx))
	locked, err = s.IsPermanentlyLocked(ctx, biometric.Face)
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "nested", "lockout.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	storeContract(t, s)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "lockout.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.SetPermanentlyLocked(ctx, biometric.Iris))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err, "migrations are applied once")
	defer func() { _ = s.Close() }()

	locked, err := s.IsPermanentlyLocked(ctx, biometric.Iris)
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestOpenSQLite_RequiresPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), "  ")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, biometric.CodeInvalidConfig)
}

func TestRedisStore(t *testing.T) {
	_, client := newTestRedis(t)
	s := NewRedisStore(client, "")
	defer func() { _ = s.Close() }()

	storeContract(t, s)
}

func TestRedisStore_ResetKeepsForeignKeys(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisStore(client, "device-a:")
	ctx := context.Background()

	require.NoError(t, mr.Set("unrelated", "x"))
	require.NoError(t, s.SetPermanentlyLocked(ctx, biometric.Palm))
	assert.True(t, mr.Exists("device-a:user_unlock_device-BIOMETRIC_PALM"))

	require.NoError(t, s.Reset(ctx))
	assert.False(t, mr.Exists("device-a:user_unlock_device-BIOMETRIC_PALM"))
	assert.True(t, mr.Exists("unrelated"))
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, "")
	defer func() { _ = s.Close() }()
	mr.Close()

	_, err = s.IsPermanentlyLocked(context.Background(), biometric.Face)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, biometric.CodeLockoutStoreFailed)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		s, err := Open(ctx, Config{Driver: DriverMemory})
		require.NoError(t, err)
		assert.IsType(t, &MemoryStore{}, s)
	})

	t.Run("sqlite", func(t *testing.T) {
		s, err := Open(ctx, Config{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "l.db")})
		require.NoError(t, err)
		defer func() { _ = s.Close() }()
		assert.IsType(t, &SQLiteStore{}, s)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		s, err := Open(ctx, Config{Driver: DriverRedis, RedisAddr: mr.Addr()})
		require.NoError(t, err)
		defer func() { _ = s.Close() }()
		assert.IsType(t, &RedisStore{}, s)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := Open(ctx, Config{Driver: "etcd"})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, biometric.CodeInvalidConfig)
	})
}
