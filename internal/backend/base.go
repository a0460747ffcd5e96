// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package backend

import (
	"log/slog"

	"github.com/biogate/biogate/internal/biometric"
	"github.com/biogate/biogate/internal/restart"
)

// Base carries the state every driver needs. Drivers embed it and add the
// presence, enrollment and Authenticate methods.
type Base struct {
	desc    biometric.Descriptor
	lockout *Lockout
	logger  *slog.Logger
}

// NewBase builds a Base for d using the collaborators in env.
func NewBase(d biometric.Descriptor, env Env, opts ...LockoutOption) Base {
	logger := env.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("backend", d.Name, "backend_id", d.ID)
	opts = append([]LockoutOption{WithLockoutLogger(logger)}, opts...)
	return Base{
		desc:    d,
		lockout: NewLockout(d.Type, env.Store, opts...),
		logger:  logger,
	}
}

// Descriptor returns the backend's static identity.
func (b *Base) Descriptor() biometric.Descriptor { return b.desc }

// IsLockedOut reports temporary or permanent lockout.
func (b *Base) IsLockedOut() bool { return b.lockout.IsLockedOut() }

// Lockout exposes the lockout state.
func (b *Base) Lockout() *Lockout { return b.lockout }

// Logger returns the backend-scoped logger.
func (b *Base) Logger() *slog.Logger { return b.logger }

// NewCallback returns the retry state machine for one authenticate call.
func (b *Base) NewCallback(token *Token, sink Sink, pred restart.Predicate, opts ...CallbackOption) *Callback {
	opts = append([]CallbackOption{withCallbackLogger(b.logger)}, opts...)
	return NewCallback(b.desc, b.lockout, token, sink, pred, opts...)
}
