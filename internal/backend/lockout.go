// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package backend

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/biogate/biogate/internal/biometric"
	"github.com/biogate/biogate/internal/lockout"
	"github.com/biogate/biogate/pkg/errutil"
)

// DefaultCooldown is how long a temporary lockout lasts.
const DefaultCooldown = 30 * time.Second

const defaultStoreTimeout = 2 * time.Second

// LockoutOption configures a Lockout.
type LockoutOption func(*Lockout)

// WithCooldown sets the temporary lockout duration.
func WithCooldown(d time.Duration) LockoutOption {
	return func(l *Lockout) { l.cooldown = d }
}

// WithClock sets the time source. Tests use it to expire cooldowns.
func WithClock(now func() time.Time) LockoutOption {
	return func(l *Lockout) { l.now = now }
}

// WithLockoutLogger sets the logger used for store failures.
func WithLockoutLogger(logger *slog.Logger) LockoutOption {
	return func(l *Lockout) { l.logger = logger }
}

// Lockout tracks the lockout state of one backend: a temporary in-memory
// cooldown plus the permanent flag kept in the lockout store.
type Lockout struct {
	typ      biometric.Type
	store    lockout.Store
	cooldown time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu    sync.Mutex
	until time.Time
}

// NewLockout creates lockout state for a backend servicing typ. A nil store
// disables permanent lockout.
func NewLockout(typ biometric.Type, store lockout.Store, opts ...LockoutOption) *Lockout {
	l := &Lockout{
		typ:      typ,
		store:    store,
		cooldown: DefaultCooldown,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock starts a temporary cooldown. It is never persisted.
func (l *Lockout) Lock() {
	l.mu.Lock()
	l.until = l.now().Add(l.cooldown)
	l.mu.Unlock()
	l.logger.Debug("temporary lockout", "type", l.typ.String(), "cooldown", l.cooldown)
}

// Clear drops a temporary cooldown.
func (l *Lockout) Clear() {
	l.mu.Lock()
	l.until = time.Time{}
	l.mu.Unlock()
}

// TemporarilyLocked reports whether a cooldown is running.
func (l *Lockout) TemporarilyLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.until.IsZero() && l.now().Before(l.until)
}

// LockPermanently persists the permanent flag for the backend's type.
func (l *Lockout) LockPermanently(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, defaultStoreTimeout)
	defer cancel()
	if err := l.store.SetPermanentlyLocked(ctx, l.typ); err != nil {
		errutil.LogErrorContext(ctx, l.logger, "persist permanent lockout failed", err)
		return err
	}
	l.logger.Warn("permanent lockout", "type", l.typ.String())
	return nil
}

// PermanentlyLocked consults the store. Store errors are logged and read as
// "not locked".
func (l *Lockout) PermanentlyLocked() bool {
	if l.store == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultStoreTimeout)
	defer cancel()
	locked, err := l.store.IsPermanentlyLocked(ctx, l.typ)
	if err != nil {
		errutil.LogErrorContext(ctx, l.logger, "read permanent lockout failed", err)
		return false
	}
	return locked
}

// IsLockedOut reports a running cooldown or a persisted permanent flag.
func (l *Lockout) IsLockedOut() bool {
	return l.TemporarilyLocked() || l.PermanentlyLocked()
}
