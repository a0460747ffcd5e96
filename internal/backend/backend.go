// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

// Package backend defines the capability surface the engine consumes from
// sensor drivers, and the per-call retry state machine drivers share.
package backend

import (
	"context"
	"log/slog"

	"github.com/biogate/biogate/internal/biometric"
	"github.com/biogate/biogate/internal/lockout"
	"github.com/biogate/biogate/internal/restart"
)

// Backend is one running sensor driver instance.
//
// Presence, enrollment and lockout are computed on every call; the engine
// never caches them. Authenticate must return promptly and deliver outcomes
// to sink asynchronously, honoring token cancellation.
type Backend interface {
	Descriptor() biometric.Descriptor
	IsManagerAccessible() bool
	IsHardwarePresent() bool
	HasEnrolled() bool
	IsLockedOut() bool
	Authenticate(token *Token, purpose *biometric.CryptoPurpose, sink Sink, pred restart.Predicate)
}

// Env carries the collaborators a factory may hand to the backend it builds.
type Env struct {
	Store  lockout.Store
	Logger *slog.Logger
}

// Factory initializes a backend. Initialization may query vendor services
// and take a while; it must honor ctx.
type Factory func(ctx context.Context, d biometric.Descriptor, env Env) (Backend, error)
