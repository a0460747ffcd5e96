// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

// Package session folds per-backend events of one authentication request
// into a single decision under a confirmation policy.
package session

import (
	"log/slog"
	"slices"

	"github.com/biogate/biogate/internal/biometric"
)

// Config describes what one session waits for.
type Config struct {
	Policy Policy
	// DegradeAll lets PolicyAll succeed when every desired type finished
	// and at least one succeeded. Without it every type must succeed.
	DegradeAll bool
	// Primary and Secondary partition the desired types. Every type keeps
	// its own slot; only the owning type's slot records an outcome.
	Primary   []biometric.Type
	Secondary []biometric.Type
}

// Desired returns primary then secondary types without duplicates.
func (c Config) Desired() []biometric.Type {
	out := make([]biometric.Type, 0, len(c.Primary)+len(c.Secondary))
	for _, t := range slices.Concat(c.Primary, c.Secondary) {
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// Result is one succeeded type of a finished session.
type Result struct {
	Type   biometric.Type
	Crypto *biometric.CryptoObject
}

// Listener is notified about a session. Exactly one of OnSucceeded,
// OnFailed and OnCanceled is called, after which the listener is dropped.
type Listener interface {
	OnHelp(help biometric.HelpReason, msg string)
	OnSucceeded(results []Result)
	OnFailed(reason biometric.FailureReason)
	OnCanceled()
}

// Canceler stops every in-flight backend of the session.
type Canceler interface {
	CancelAll()
}

type slotState int

const (
	pending slotState = iota
	succeeded
	failed
)

type slot struct {
	state  slotState
	reason biometric.FailureReason
	crypto *biometric.CryptoObject
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = logger }
}

// Aggregator owns the state of one session. It is not safe for concurrent
// use: every method must run on the dispatcher's loop.
type Aggregator struct {
	cfg      Config
	canceler Canceler
	listener Listener
	logger   *slog.Logger

	desired []biometric.Type
	slots   map[biometric.Type]*slot
	last    biometric.FailureReason
	done    bool
}

// New creates an Aggregator waiting for cfg's desired types.
func New(cfg Config, canceler Canceler, listener Listener, opts ...Option) *Aggregator {
	a := &Aggregator{
		cfg:      cfg,
		canceler: canceler,
		listener: listener,
		logger:   slog.Default(),
		desired:  cfg.Desired(),
		slots:    make(map[biometric.Type]*slot),
	}
	for _, opt := range opts {
		opt(a)
	}
	for _, t := range a.desired {
		a.slots[t] = &slot{}
	}
	return a
}

// Finished reports whether the session reached its decision.
func (a *Aggregator) Finished() bool { return a.done }

// OnEvent folds one normalized backend event into the session.
func (a *Aggregator) OnEvent(ev biometric.Event) {
	if a.done {
		a.logger.Debug("late event ignored", "type", ev.Type.String(), "backend_id", ev.BackendID, "outcome", ev.Outcome.Kind.String())
		return
	}
	o := ev.Outcome
	switch o.Kind {
	case biometric.OutcomeHelp:
		a.listener.OnHelp(o.Help, o.Message)
		return
	case biometric.OutcomeCanceled:
		a.finish(func(l Listener) { l.OnCanceled() })
		return
	case biometric.OutcomeFailure:
		if !o.Fatal {
			return
		}
	}

	s, ok := a.slots[ev.Type]
	if !ok {
		a.logger.Warn("event for undesired type ignored", "type", ev.Type.String(), "backend_id", ev.BackendID)
		return
	}
	if s.state != pending {
		return
	}

	if o.Kind == biometric.OutcomeSuccess {
		s.state, s.crypto = succeeded, o.Crypto
	} else {
		s.state, s.reason = failed, o.Reason
		a.last = o.Reason
	}
	a.evaluate()
}

// Cancel ends the session as canceled. It is a no-op once finished.
func (a *Aggregator) Cancel() {
	if a.done {
		return
	}
	a.finish(func(l Listener) { l.OnCanceled() })
}

// evaluate applies the confirmation policy to the current slots.
func (a *Aggregator) evaluate() {
	var ok, remaining int
	for _, t := range a.desired {
		switch a.slots[t].state {
		case pending:
			remaining++
		case succeeded:
			ok++
		}
	}

	switch a.cfg.Policy {
	case PolicyAll:
		if remaining > 0 {
			return
		}
		if ok > 0 && (a.cfg.DegradeAll || ok == len(a.desired)) {
			a.succeed()
			return
		}
	default:
		if ok > 0 {
			a.succeed()
			return
		}
		if remaining > 0 {
			return
		}
	}
	reason := a.last
	if reason == biometric.ReasonUnknown {
		reason = biometric.ReasonInternalError
	}
	a.finish(func(l Listener) { l.OnFailed(reason) })
}

func (a *Aggregator) succeed() {
	var results []Result
	for _, t := range a.desired {
		if s := a.slots[t]; s.state == succeeded {
			results = append(results, Result{Type: t, Crypto: s.crypto})
		}
	}
	a.finish(func(l Listener) { l.OnSucceeded(results) })
}

// finish cancels in-flight backends, then notifies the listener once and
// drops it.
func (a *Aggregator) finish(notify func(Listener)) {
	a.done = true
	if a.canceler != nil {
		a.canceler.CancelAll()
	}
	l := a.listener
	a.listener = nil
	if l != nil {
		notify(l)
	}
}
