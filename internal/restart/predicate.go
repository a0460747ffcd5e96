// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

// Package restart decides whether a backend that reported a failure should
// try again on the same token.
package restart

import (
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/biogate/biogate/internal/biometric"
)

// DefaultBudget is the number of restarts Default grants before declining.
const DefaultBudget = 5

// Predicate maps a failure reason to "restart the same backend" (true) or
// "stop" (false). Implementations must be safe for concurrent use since one
// predicate is shared by every backend of a session.
type Predicate interface {
	Restart(reason biometric.FailureReason) bool
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(reason biometric.FailureReason) bool

// Restart implements Predicate.
func (f PredicateFunc) Restart(reason biometric.FailureReason) bool {
	return f(reason)
}

// fatal reasons are never restarted.
var fatal = map[biometric.FailureReason]struct{}{
	biometric.ReasonLockedOut:           {},
	biometric.ReasonPermanentlyLocked:   {},
	biometric.ReasonHardwareUnavailable: {},
	biometric.ReasonNoHardware:          {},
}

// IsFatal reports whether reason is in the set every predicate declines.
func IsFatal(reason biometric.FailureReason) bool {
	_, ok := fatal[reason]
	return ok
}

// budgeted restarts eligible reasons until its backoff budget runs out.
type budgeted struct {
	mu       sync.Mutex
	backoff  retry.Backoff
	eligible func(biometric.FailureReason) bool
	spent    bool
}

func newBudgeted(n int, eligible func(biometric.FailureReason) bool) *budgeted {
	if n < 0 {
		n = 0
	}
	// The delay is irrelevant: only the stop signal is consulted.
	b := retry.WithMaxRetries(uint64(n), retry.NewConstant(time.Millisecond))
	return &budgeted{backoff: b, eligible: eligible}
}

func (p *budgeted) Restart(reason biometric.FailureReason) bool {
	if !p.eligible(reason) {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.spent {
		return false
	}
	if _, stop := p.backoff.Next(); stop {
		p.spent = true
		return false
	}
	return true
}

// Default restarts every reason outside the fatal set, at most DefaultBudget
// times over the predicate's lifetime.
func Default() Predicate {
	return DefaultWithBudget(DefaultBudget)
}

// DefaultWithBudget is Default with a custom restart budget.
func DefaultWithBudget(n int) Predicate {
	return newBudgeted(n, func(r biometric.FailureReason) bool { return !IsFatal(r) })
}

// Never declines every restart. One-shot callers use it.
func Never() Predicate {
	return PredicateFunc(func(biometric.FailureReason) bool { return false })
}

// Limited restarts transient reasons at most n times.
func Limited(n int) Predicate {
	return newBudgeted(n, func(r biometric.FailureReason) bool {
		return r.Transient() && !IsFatal(r)
	})
}
