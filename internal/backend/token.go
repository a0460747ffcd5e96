// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package backend

import (
	"context"
	"sync"
)

// Token is the cancellation handle for one in-flight authenticate call on
// one backend. The dispatcher owns it; drivers only observe it.
type Token struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	canceled bool
	hooks    []func()
}

// NewToken returns a live token whose Context derives from parent.
func NewToken(parent context.Context) *Token {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Token{ctx: ctx, cancel: cancel}
}

// Cancel cancels the token and runs its hooks. It reports whether this call
// did the cancelling; further calls are no-ops.
func (t *Token) Cancel() bool {
	t.mu.Lock()
	if t.canceled {
		t.mu.Unlock()
		return false
	}
	t.canceled = true
	hooks := t.hooks
	t.hooks = nil
	t.mu.Unlock()

	t.cancel()
	for _, h := range hooks {
		h()
	}
	return true
}

// Canceled reports whether Cancel has been called.
func (t *Token) Canceled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canceled
}

// Done is closed once the token is cancelled.
func (t *Token) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Context returns a context cancelled together with the token.
func (t *Token) Context() context.Context {
	return t.ctx
}

// OnCancel registers f to run when the token is cancelled. If it already
// is, f runs immediately on the caller's goroutine.
func (t *Token) OnCancel(f func()) {
	t.mu.Lock()
	if t.canceled {
		t.mu.Unlock()
		f()
		return
	}
	t.hooks = append(t.hooks, f)
	t.mu.Unlock()
}
