// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

// Package engine is the orchestrator: it owns the registry, the dispatcher
// and at most one live session, and turns an authentication request into
// exactly one decision for the caller.
package engine

import (
	"context"
	"crypto/rand"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"

	"github.com/biogate/biogate/internal/backend"
	"github.com/biogate/biogate/internal/biometric"
	"github.com/biogate/biogate/internal/dispatch"
	"github.com/biogate/biogate/internal/lockout"
	"github.com/biogate/biogate/internal/registry"
	"github.com/biogate/biogate/internal/restart"
	"github.com/biogate/biogate/internal/session"
	"github.com/biogate/biogate/pkg/errutil"
)

var tracer = otel.Tracer("biogate/engine")

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// newSessionID generates a monotonic ULID.
func newSessionID() ulid.ULID {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
}

// Request describes one authentication.
type Request struct {
	// Primary and Secondary partition the desired types. Each type is
	// served by its own backend and decided by its own outcome.
	Primary    []biometric.Type
	Secondary  []biometric.Type
	Policy     session.Policy
	DegradeAll bool
	Purpose    *biometric.CryptoPurpose
	// Predicate defaults to restart.Default().
	Predicate restart.Predicate
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithDispatcher replaces the default dispatcher.
func WithDispatcher(d *dispatch.Dispatcher) Option {
	return func(e *Engine) { e.dispatcher = d }
}

// WithRediscoverOnCancel controls whether a canceled session re-runs
// discovery for its types. Enabled by default.
func WithRediscoverOnCancel(enabled bool) Option {
	return func(e *Engine) { e.rediscover = enabled }
}

// Engine is the single owned orchestrator instance of a process.
type Engine struct {
	registry   *registry.Registry
	store      lockout.Store
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
	rediscover bool

	mu      sync.Mutex
	current *liveSession
	closed  bool

	background sync.WaitGroup
}

// New creates an Engine over reg and store. store may be nil when no
// backend persists lockouts.
func New(reg *registry.Registry, store lockout.Store, opts ...Option) *Engine {
	e := &Engine{
		registry:   reg,
		store:      store,
		logger:     slog.Default(),
		rediscover: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.dispatcher == nil {
		e.dispatcher = dispatch.New(dispatch.WithLogger(e.logger))
	}
	return e
}

// Registry returns the engine's registry.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Discover runs a discovery pass for types (all when empty) and waits for
// it to finish.
func (e *Engine) Discover(ctx context.Context, types []biometric.Type) error {
	started := time.Now()
	if err := e.registry.DiscoverAndWait(ctx, types); err != nil {
		return err
	}
	recordDiscovery(time.Since(started), len(e.registry.Backends()))
	return nil
}

// Authenticate starts a session for req. The listener is notified exactly
// once with the decision. Only one session runs at a time.
func (e *Engine) Authenticate(ctx context.Context, req Request, listener session.Listener) (ulid.ULID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ulid.ULID{}, biometric.ErrEngineClosed()
	}
	if e.current != nil {
		return ulid.ULID{}, biometric.ErrSessionInProgress()
	}

	id := newSessionID()
	primary, secondary := e.expand(req.Primary, req.Secondary)
	wanted := slices.Concat(primary, secondary)
	selected, primary, secondary := e.selectBackends(primary, secondary)
	if req.Policy == 0 {
		req.Policy = session.PolicyAny
	}
	if req.Predicate == nil {
		req.Predicate = restart.Default()
	}

	if len(selected) == 0 {
		err := e.unusable(ctx, wanted)
		errutil.LogErrorContext(ctx, e.logger, "no usable backend", err)
		recordSession(req.Policy.String(), ResultFailed, 0)
		e.dispatcher.Loop().Post(func() { listener.OnFailed(biometric.ReasonOf(err)) })
		return id, nil
	}

	cfg := session.Config{
		Policy:     req.Policy,
		DegradeAll: req.DegradeAll,
		Primary:    primary,
		Secondary:  secondary,
	}
	ls := e.newLiveSession(ctx, id, cfg, listener)
	e.current = ls

	e.dispatcher.RegisterActive(selected)
	if err := e.dispatcher.Start(ls.ctx, req.Purpose, ls, req.Predicate); err != nil {
		e.logger.WarnContext(ls.ctx, "some backends refused to start", "error", err)
	}
	return id, nil
}

// expand replaces Any with every available type and drops secondary
// duplicates of primary types.
func (e *Engine) expand(primary, secondary []biometric.Type) ([]biometric.Type, []biometric.Type) {
	available := e.registry.AvailableTypes()
	expandOne := func(in []biometric.Type) []biometric.Type {
		var out []biometric.Type
		for _, t := range in {
			if t == biometric.Any {
				for _, a := range available {
					if !slices.Contains(out, a) {
						out = append(out, a)
					}
				}
				continue
			}
			if !slices.Contains(out, t) {
				out = append(out, t)
			}
		}
		return out
	}
	p := expandOne(primary)
	var s []biometric.Type
	for _, t := range expandOne(secondary) {
		if !slices.Contains(p, t) {
			s = append(s, t)
		}
	}
	return p, s
}

// selectBackends picks the best backend per type and keeps only those that
// are present, enrolled and not locked out.
func (e *Engine) selectBackends(primary, secondary []biometric.Type) ([]backend.Backend, []biometric.Type, []biometric.Type) {
	var selected []backend.Backend
	usable := func(types []biometric.Type) []biometric.Type {
		var out []biometric.Type
		for _, t := range types {
			b, ok := e.registry.Best(t)
			if !ok {
				continue
			}
			if !b.IsHardwarePresent() || !b.HasEnrolled() || b.IsLockedOut() {
				e.logger.Debug("backend not usable", "backend", b.Descriptor().Name,
					"present", b.IsHardwarePresent(), "enrolled", b.HasEnrolled(), "locked_out", b.IsLockedOut())
				continue
			}
			selected = append(selected, b)
			out = append(out, t)
		}
		return out
	}
	p := usable(primary)
	s := usable(secondary)
	return selected, p, s
}

// unusable explains an empty selection. When every wanted type has a backend
// that is ready but locked out, the lockout is reported; permanent only if
// every one of them is permanently locked.
func (e *Engine) unusable(ctx context.Context, wanted []biometric.Type) error {
	permanent := true
	for _, t := range wanted {
		b, ok := e.registry.Best(t)
		if !ok || !b.IsHardwarePresent() || !b.HasEnrolled() || !b.IsLockedOut() {
			return biometric.ErrNoBackends(wanted)
		}
		if permanent && e.store != nil {
			locked, err := e.store.IsPermanentlyLocked(ctx, t)
			permanent = err == nil && locked
		} else {
			permanent = false
		}
	}
	if len(wanted) == 0 {
		return biometric.ErrNoBackends(wanted)
	}
	return biometric.ErrLockedOut(wanted, permanent)
}

// Cancel cancels the live session, if any. The listener is notified with
// OnCanceled unless the session finished first.
func (e *Engine) Cancel() bool {
	e.mu.Lock()
	ls := e.current
	e.mu.Unlock()
	if ls == nil {
		return false
	}
	e.dispatcher.Loop().Post(ls.agg.Cancel)
	return true
}

// Active returns the id of the live session.
func (e *Engine) Active() (ulid.ULID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return ulid.ULID{}, false
	}
	return e.current.id, true
}

// ResetLockout clears every permanent flag and every temporary cooldown of
// the ready backends.
func (e *Engine) ResetLockout(ctx context.Context) error {
	if e.store != nil {
		if err := e.store.Reset(ctx); err != nil {
			return err
		}
	}
	for _, b := range e.registry.Backends() {
		if l, ok := b.(interface{ Lockout() *backend.Lockout }); ok {
			l.Lockout().Clear()
		}
	}
	e.logger.InfoContext(ctx, "lockouts reset")
	return nil
}

// finished is called on the loop once a session decided.
func (e *Engine) finished(ls *liveSession, canceled bool) {
	e.mu.Lock()
	if e.current == ls {
		e.current = nil
	}
	rediscover := canceled && e.rediscover && !e.closed
	if rediscover {
		e.background.Add(1)
	}
	e.mu.Unlock()

	if !rediscover {
		return
	}
	types := ls.cfg.Desired()
	if !e.registry.Discover(context.WithoutCancel(ls.ctx), types, nil, e.background.Done) {
		e.background.Done()
	}
}

// Close cancels the live session, waits for backends and background
// discovery, and stops the event loop.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	ls := e.current
	e.mu.Unlock()

	if ls != nil {
		e.dispatcher.Loop().Post(ls.agg.Cancel)
	}
	e.dispatcher.Close()
	e.background.Wait()
}

// BackendStatus describes one ready backend.
type BackendStatus struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Present   bool   `json:"present"`
	Enrolled  bool   `json:"enrolled"`
	LockedOut bool   `json:"locked_out"`
}

// Status is a snapshot of the engine.
type Status struct {
	Platform    string          `json:"platform"`
	Ready       bool            `json:"ready"`
	Discovering bool            `json:"discovering"`
	Session     string          `json:"session,omitempty"`
	Backends    []BackendStatus `json:"backends"`
}

// Status returns a snapshot of the ready set and the live session.
func (e *Engine) Status() Status {
	st := Status{
		Platform:    e.registry.Platform().String(),
		Ready:       e.registry.Ready(),
		Discovering: e.registry.Discovering(),
		Backends:    []BackendStatus{},
	}
	if id, ok := e.Active(); ok {
		st.Session = id.String()
	}
	for _, b := range e.registry.Backends() {
		d := b.Descriptor()
		st.Backends = append(st.Backends, BackendStatus{
			ID:        d.ID,
			Name:      d.Name,
			Type:      d.Type.String(),
			Present:   b.IsHardwarePresent(),
			Enrolled:  b.HasEnrolled(),
			LockedOut: b.IsLockedOut(),
		})
	}
	return st
}
