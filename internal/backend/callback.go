// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package backend

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/biogate/biogate/internal/biometric"
	"github.com/biogate/biogate/internal/restart"
)

// DefaultSkipWindow suppresses burst errors some vendor stacks emit right
// after a call starts or right after a previous error.
const DefaultSkipWindow = 200 * time.Millisecond

// DefaultTimeoutRestarts bounds silent restarts after timeout errors.
const DefaultTimeoutRestarts = 3

// Verdict tells the driver what to do after reporting to a Callback.
type Verdict int

// Verdicts.
const (
	// Ignore means the report was dropped; keep scanning.
	Ignore Verdict = iota
	// Continue means a non-fatal failure was reported; keep scanning.
	Continue
	// Restart means the driver must re-issue the hardware call.
	Restart
	// Stop means the call is over; release the hardware.
	Stop
)

func (v Verdict) String() string {
	switch v {
	case Ignore:
		return "ignore"
	case Continue:
		return "continue"
	case Restart:
		return "restart"
	case Stop:
		return "stop"
	default:
		return "unknown"
	}
}

// CallbackOption configures a Callback.
type CallbackOption func(*Callback)

// WithSkipWindow sets the debounce window. Zero disables debouncing.
func WithSkipWindow(d time.Duration) CallbackOption {
	return func(c *Callback) { c.window = d }
}

// WithTimeoutRestarts sets how many timeouts restart silently before a
// timeout is treated like any other failure.
func WithTimeoutRestarts(n int) CallbackOption {
	return func(c *Callback) { c.maxTimeouts = n }
}

// WithCallbackClock sets the time source.
func WithCallbackClock(now func() time.Time) CallbackOption {
	return func(c *Callback) { c.now = now }
}

func withCallbackLogger(logger *slog.Logger) CallbackOption {
	return func(c *Callback) { c.logger = logger }
}

// Callback is the retry state machine for one authenticate call. Drivers
// feed it raw hardware reports and act on the returned Verdict; it decides
// what reaches the sink. At most one terminal event is delivered.
type Callback struct {
	desc    biometric.Descriptor
	lockout *Lockout
	token   *Token
	sink    Sink
	pred    restart.Predicate
	logger  *slog.Logger

	window      time.Duration
	maxTimeouts int
	now         func() time.Time

	mu        sync.Mutex
	start     time.Time
	lastError time.Time
	timeouts  int
	done      bool
}

// NewCallback creates a Callback. A nil predicate never restarts. A nil
// lockout disables lockout escalation side effects.
func NewCallback(d biometric.Descriptor, l *Lockout, token *Token, sink Sink, pred restart.Predicate, opts ...CallbackOption) *Callback {
	if pred == nil {
		pred = restart.Never()
	}
	c := &Callback{
		desc:        d,
		lockout:     l,
		token:       token,
		sink:        sink,
		pred:        pred,
		logger:      slog.Default(),
		window:      DefaultSkipWindow,
		maxTimeouts: DefaultTimeoutRestarts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.start = c.now()
	return c
}

// Started marks the beginning of a (re-)issued hardware call.
func (c *Callback) Started() {
	c.mu.Lock()
	c.start = c.now()
	c.mu.Unlock()
}

// Done reports whether a terminal event was delivered or the token is gone.
func (c *Callback) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closedLocked()
}

func (c *Callback) closedLocked() bool {
	return c.done || (c.token != nil && c.token.Canceled())
}

// debouncedLocked reports whether a report at now falls inside the skip
// window, and records it as the latest error otherwise.
func (c *Callback) debouncedLocked(now time.Time) bool {
	if c.window > 0 && (now.Sub(c.lastError) <= c.window || now.Sub(c.start) <= c.window) {
		return true
	}
	c.lastError = now
	return false
}

// Error handles an error code from the hardware.
func (c *Callback) Error(code ErrorCode) Verdict {
	c.mu.Lock()
	if c.closedLocked() {
		c.mu.Unlock()
		return Stop
	}
	if c.debouncedLocked(c.now()) {
		c.mu.Unlock()
		c.logger.Debug("error debounced", "code", code.String())
		return Ignore
	}

	switch {
	case code == CodeCanceled:
		c.done = true
		c.mu.Unlock()
		return Stop
	case code.userCancel():
		c.done = true
		c.mu.Unlock()
		if c.token != nil {
			c.token.Cancel()
		}
		c.sink.OnCanceled(c.desc.ID)
		return Stop
	case code == CodeTimeout && c.timeouts < c.maxTimeouts:
		c.timeouts++
		c.start = c.now()
		c.mu.Unlock()
		c.logger.Debug("restarting after timeout", "restart", c.timeouts)
		return Restart
	case code == CodeLockout:
		c.done = true
		c.mu.Unlock()
		if c.lockout != nil {
			c.lockout.Lock()
		}
		c.sink.OnFailure(c.desc.ID, biometric.ReasonLockedOut, true)
		return Stop
	case code == CodeLockoutPermanent:
		c.done = true
		c.mu.Unlock()
		if c.lockout != nil {
			_ = c.lockout.LockPermanently(c.storeContext())
		}
		c.sink.OnFailure(c.desc.ID, biometric.ReasonPermanentlyLocked, true)
		return Stop
	}
	c.mu.Unlock()
	return c.decide(code.Reason(), true)
}

// Failed handles a non-match. The sensor keeps scanning unless the
// predicate declines.
func (c *Callback) Failed() Verdict {
	c.mu.Lock()
	if c.closedLocked() {
		c.mu.Unlock()
		return Stop
	}
	if c.debouncedLocked(c.now()) {
		c.mu.Unlock()
		return Ignore
	}
	c.mu.Unlock()
	return c.decide(biometric.ReasonAuthenticationFailed, false)
}

// decide runs the restart predicate for reason. reissue selects Restart
// over Continue when the predicate allows another attempt.
func (c *Callback) decide(reason biometric.FailureReason, reissue bool) Verdict {
	if c.Done() {
		return Stop
	}
	if terminalReason(reason) || !c.pred.Restart(reason) {
		if reason.CountsTowardLockout() {
			if c.lockout != nil {
				c.lockout.Lock()
			}
			reason = biometric.ReasonLockedOut
		}
		c.mu.Lock()
		if c.closedLocked() {
			c.mu.Unlock()
			return Stop
		}
		c.done = true
		c.mu.Unlock()
		c.sink.OnFailure(c.desc.ID, reason, true)
		return Stop
	}

	c.sink.OnFailure(c.desc.ID, reason, false)
	if !reissue {
		return Continue
	}
	if c.token != nil && c.token.Canceled() {
		return Stop
	}
	c.Started()
	return Restart
}

// storeContext outlives the token so a permanent lockout is persisted even
// when the session is torn down concurrently.
func (c *Callback) storeContext() context.Context {
	if c.token == nil {
		return context.Background()
	}
	return context.WithoutCancel(c.token.Context())
}

// terminalReason reports reasons that end the call without consulting the
// predicate.
func terminalReason(r biometric.FailureReason) bool {
	switch r {
	case biometric.ReasonNoHardware, biometric.ReasonNoBiometricsRegistered,
		biometric.ReasonLockedOut, biometric.ReasonPermanentlyLocked:
		return true
	default:
		return false
	}
}

// Succeeded delivers a success. It is dropped after cancellation or a
// previous terminal event.
func (c *Callback) Succeeded(crypto *biometric.CryptoObject) Verdict {
	c.mu.Lock()
	if c.closedLocked() {
		c.mu.Unlock()
		return Stop
	}
	c.done = true
	c.mu.Unlock()
	if c.lockout != nil {
		c.lockout.Clear()
	}
	c.sink.OnSuccess(c.desc.ID, crypto)
	return Stop
}

// Help forwards an acquisition hint.
func (c *Callback) Help(reason biometric.HelpReason, msg string) Verdict {
	if c.Done() {
		return Stop
	}
	c.sink.OnHelp(c.desc.ID, reason, msg)
	return Ignore
}
