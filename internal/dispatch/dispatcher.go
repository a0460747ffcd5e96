// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

// Package dispatch starts authenticate calls on backends, owns their
// cancellation tokens and relays normalized events to a listener on a
// serialized loop.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/biogate/biogate/internal/backend"
	"github.com/biogate/biogate/internal/biometric"
	"github.com/biogate/biogate/internal/restart"
)

// Listener consumes normalized events. It is always called on the loop.
type Listener interface {
	OnEvent(ev biometric.Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ev biometric.Event)

// OnEvent implements Listener.
func (f ListenerFunc) OnEvent(ev biometric.Event) { f(ev) }

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithLoop delivers events on an existing loop. The dispatcher does not
// close loops it did not create.
func WithLoop(l *Loop) Option {
	return func(d *Dispatcher) { d.loop, d.ownsLoop = l, false }
}

// WithClock sets the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// Dispatcher owns the active backend set and one token per in-flight
// authenticate call. A single mutex guards both maps.
type Dispatcher struct {
	logger   *slog.Logger
	loop     *Loop
	ownsLoop bool
	now      func() time.Time

	mu     sync.Mutex
	active map[int]backend.Backend
	tokens map[int]*backend.Token
	types  map[int]biometric.Type
	closed bool

	wg sync.WaitGroup
}

// New creates a Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger:   slog.Default(),
		ownsLoop: true,
		now:      time.Now,
		active:   make(map[int]backend.Backend),
		tokens:   make(map[int]*backend.Token),
		types:    make(map[int]biometric.Type),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.loop == nil {
		d.loop = NewLoop()
		d.ownsLoop = true
	}
	return d
}

// Loop returns the loop events are delivered on.
func (d *Dispatcher) Loop() *Loop { return d.loop }

// RegisterActive replaces the active set with the backends whose hardware
// is present. In-flight calls on backends dropped from the set are cancelled.
func (d *Dispatcher) RegisterActive(backends []backend.Backend) {
	next := make(map[int]backend.Backend, len(backends))
	for _, b := range backends {
		if b.IsHardwarePresent() {
			next[b.Descriptor().ID] = b
		}
	}

	d.mu.Lock()
	var stale []*backend.Token
	for id, tok := range d.tokens {
		if _, keep := next[id]; !keep {
			stale = append(stale, tok)
			delete(d.tokens, id)
		}
	}
	d.active = next
	d.mu.Unlock()

	for _, tok := range stale {
		tok.Cancel()
	}
}

// Active returns the ids of the active backends.
func (d *Dispatcher) Active() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]int, 0, len(d.active))
	for id := range d.active {
		ids = append(ids, id)
	}
	return ids
}

// Start begins authentication on every active backend. Backends that fail
// their preconditions report a fatal InternalError event and their errors
// are joined into the result.
func (d *Dispatcher) Start(ctx context.Context, purpose *biometric.CryptoPurpose, listener Listener, pred restart.Predicate) error {
	d.mu.Lock()
	backends := make([]backend.Backend, 0, len(d.active))
	for _, b := range d.active {
		backends = append(backends, b)
	}
	d.mu.Unlock()

	var errs []error
	for _, b := range backends {
		if err := d.StartBackend(ctx, b, purpose, listener, pred); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StartBackend begins authentication on one backend. A stale in-flight
// call on the same backend is cancelled first. The backend must be present,
// enrolled and not locked out; otherwise a fatal InternalError event is
// delivered and an error returned.
func (d *Dispatcher) StartBackend(ctx context.Context, b backend.Backend, purpose *biometric.CryptoPurpose, listener Listener, pred restart.Predicate) error {
	desc := b.Descriptor()
	present, enrolled, locked := b.IsHardwarePresent(), b.HasEnrolled(), b.IsLockedOut()
	if !present || !enrolled || locked {
		err := biometric.ErrBackendNotReady(desc, present, enrolled, locked)
		d.logger.WarnContext(ctx, "refusing to start backend", "error", err)
		d.post(listener, desc.Type, desc.ID, biometric.Failure(biometric.ReasonInternalError, true))
		return err
	}

	tok := backend.NewToken(context.WithoutCancel(ctx))

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return oops.Errorf("dispatcher closed")
	}
	stale := d.tokens[desc.ID]
	d.tokens[desc.ID] = tok
	d.types[desc.ID] = desc.Type
	d.wg.Add(1)
	d.mu.Unlock()

	if stale != nil {
		stale.Cancel()
	}

	sink := &relay{d: d, listener: listener, token: tok}
	go d.run(ctx, b, tok, purpose, sink, pred)
	return nil
}

func (d *Dispatcher) run(ctx context.Context, b backend.Backend, tok *backend.Token, purpose *biometric.CryptoPurpose, sink *relay, pred restart.Predicate) {
	defer d.wg.Done()
	desc := b.Descriptor()
	defer func() {
		if p := recover(); p != nil {
			d.logger.ErrorContext(ctx, "backend panicked during authenticate",
				"backend", desc.Name, "backend_id", desc.ID, "panic", fmt.Sprint(p))
			sink.OnFailure(desc.ID, biometric.ReasonInternalError, true)
		}
	}()
	d.logger.DebugContext(ctx, "authenticate", "backend", desc.Name, "backend_id", desc.ID)
	b.Authenticate(tok, purpose, sink, pred)
}

// Cancel cancels the in-flight call on backend id. Unknown ids and repeated
// calls are no-ops.
func (d *Dispatcher) Cancel(id int) {
	d.mu.Lock()
	tok := d.tokens[id]
	delete(d.tokens, id)
	d.mu.Unlock()
	if tok != nil {
		tok.Cancel()
	}
}

// CancelAll cancels every in-flight call.
func (d *Dispatcher) CancelAll() {
	d.mu.Lock()
	toks := make([]*backend.Token, 0, len(d.tokens))
	for id, tok := range d.tokens {
		toks = append(toks, tok)
		delete(d.tokens, id)
	}
	d.mu.Unlock()
	for _, tok := range toks {
		tok.Cancel()
	}
}

// Close cancels everything, waits for Authenticate calls to return and
// drains the loop if the dispatcher owns it.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.CancelAll()
	d.wg.Wait()
	if d.ownsLoop {
		d.loop.Close()
	}
}

func (d *Dispatcher) typeOf(id int) (biometric.Type, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.types[id]
	return t, ok
}

func (d *Dispatcher) post(listener Listener, t biometric.Type, id int, o biometric.Outcome) {
	ev := biometric.Event{Type: t, BackendID: id, Outcome: o, At: d.now()}
	if !d.loop.Post(func() { listener.OnEvent(ev) }) {
		d.logger.Debug("event dropped after close", "backend_id", id, "outcome", o.Kind.String())
	}
}

// relay is the sink handed to one authenticate call. It maps the priority
// id back to the type recorded at dispatch time and forwards to the loop.
type relay struct {
	d        *Dispatcher
	listener Listener
	token    *backend.Token
}

var _ backend.Sink = (*relay)(nil)

func (r *relay) forward(id int, o biometric.Outcome) {
	if r.token.Canceled() && o.Kind != biometric.OutcomeCanceled {
		return
	}
	t, ok := r.d.typeOf(id)
	if !ok {
		r.d.logger.Warn("event from unknown backend dropped", "backend_id", id)
		return
	}
	r.d.post(r.listener, t, id, o)
}

func (r *relay) OnSuccess(id int, crypto *biometric.CryptoObject) {
	r.forward(id, biometric.Success(crypto))
}

func (r *relay) OnFailure(id int, reason biometric.FailureReason, fatal bool) {
	r.forward(id, biometric.Failure(reason, fatal))
}

func (r *relay) OnHelp(id int, help biometric.HelpReason, msg string) {
	r.forward(id, biometric.Help(help, msg))
}

func (r *relay) OnCanceled(id int) {
	r.forward(id, biometric.Canceled())
}
