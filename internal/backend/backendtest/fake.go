// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

// Package backendtest provides a programmable backend and a recording sink
// for tests of the engine layers.
package backendtest

import (
	"context"
	"sync"
	"time"

	"github.com/biogate/biogate/internal/backend"
	"github.com/biogate/biogate/internal/biometric"
	"github.com/biogate/biogate/internal/lockout"
	"github.com/biogate/biogate/internal/restart"
)

// Call is one recorded Authenticate invocation. Tests drive the outcome
// through Callback.
type Call struct {
	Token     *backend.Token
	Purpose   *biometric.CryptoPurpose
	Sink      backend.Sink
	Predicate restart.Predicate
	Callback  *backend.Callback
}

// Fake is a Backend whose state and outcomes are controlled by the test.
type Fake struct {
	backend.Base

	mu         sync.Mutex
	present    bool
	accessible bool
	enrolled   bool
	initErr    error
	initDelay  time.Duration
	calls      []*Call
	callCh     chan *Call
	onAuth     func(*Call)
	cbOpts     []backend.CallbackOption
}

// Option configures a Fake.
type Option func(*Fake)

// Absent makes the fake report no hardware.
func Absent() Option { return func(f *Fake) { f.present = false } }

// Inaccessible makes the fake report an inaccessible manager.
func Inaccessible() Option { return func(f *Fake) { f.accessible = false } }

// NotEnrolled makes the fake report no enrollment.
func NotEnrolled() Option { return func(f *Fake) { f.enrolled = false } }

// InitError makes the factory fail.
func InitError(err error) Option { return func(f *Fake) { f.initErr = err } }

// InitDelay delays the factory.
func InitDelay(d time.Duration) Option { return func(f *Fake) { f.initDelay = d } }

// OnAuthenticate runs fn on the authenticating goroutine for every call.
func OnAuthenticate(fn func(*Call)) Option { return func(f *Fake) { f.onAuth = fn } }

// CallbackOptions are applied to every Callback the fake creates. The skip
// window defaults to zero so tests can report back-to-back.
func CallbackOptions(opts ...backend.CallbackOption) Option {
	return func(f *Fake) { f.cbOpts = append(f.cbOpts, opts...) }
}

// New creates a present, accessible and enrolled fake for d.
func New(d biometric.Descriptor, store lockout.Store, opts ...Option) *Fake {
	f := &Fake{
		Base:       backend.NewBase(d, backend.Env{Store: store}),
		present:    true,
		accessible: true,
		enrolled:   true,
		callCh:     make(chan *Call, 64),
		cbOpts:     []backend.CallbackOption{backend.WithSkipWindow(0)},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Factory returns a factory that hands out f after its configured delay.
func Factory(f *Fake) backend.Factory {
	return func(ctx context.Context, _ biometric.Descriptor, _ backend.Env) (backend.Backend, error) {
		f.mu.Lock()
		delay, err := f.initDelay, f.initErr
		f.mu.Unlock()
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if err != nil {
			return nil, err
		}
		return f, nil
	}
}

// IsManagerAccessible implements backend.Backend.
func (f *Fake) IsManagerAccessible() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accessible
}

// IsHardwarePresent implements backend.Backend.
func (f *Fake) IsHardwarePresent() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.present
}

// HasEnrolled implements backend.Backend.
func (f *Fake) HasEnrolled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enrolled
}

// SetPresent changes the reported hardware presence.
func (f *Fake) SetPresent(v bool) {
	f.mu.Lock()
	f.present = v
	f.mu.Unlock()
}

// SetEnrolled changes the reported enrollment.
func (f *Fake) SetEnrolled(v bool) {
	f.mu.Lock()
	f.enrolled = v
	f.mu.Unlock()
}

// Authenticate implements backend.Backend by recording the call.
func (f *Fake) Authenticate(token *backend.Token, purpose *biometric.CryptoPurpose, sink backend.Sink, pred restart.Predicate) {
	f.mu.Lock()
	cb := f.NewCallback(token, sink, pred, f.cbOpts...)
	call := &Call{Token: token, Purpose: purpose, Sink: sink, Predicate: pred, Callback: cb}
	f.calls = append(f.calls, call)
	onAuth := f.onAuth
	f.mu.Unlock()

	if onAuth != nil {
		onAuth(call)
	}
	f.callCh <- call
}

// Calls returns the recorded calls so far.
func (f *Fake) Calls() []*Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Call(nil), f.calls...)
}

// NextCall waits for the next Authenticate invocation.
func (f *Fake) NextCall(timeout time.Duration) (*Call, bool) {
	select {
	case c := <-f.callCh:
		return c, true
	case <-time.After(timeout):
		return nil, false
	}
}
