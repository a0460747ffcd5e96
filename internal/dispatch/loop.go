// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package dispatch

import "sync"

// Loop executes posted callbacks one at a time, in posting order, on a
// single goroutine. Posting never blocks, so backends can report from any
// goroutine without waiting on listeners.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// NewLoop starts a Loop.
func NewLoop() *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

// Post queues f. It reports false once the loop is closed.
func (l *Loop) Post(f func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, f)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Flush blocks until everything posted before the call has run. It must not
// be called from a loop callback.
func (l *Loop) Flush() {
	ch := make(chan struct{})
	if !l.Post(func() { close(ch) }) {
		return
	}
	<-ch
}

// Close stops accepting callbacks, runs the ones already queued and waits
// for the loop goroutine to exit. It must not be called from a loop callback.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		closed := l.closed
		l.mu.Unlock()

		for _, f := range batch {
			f()
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-l.wake
	}
}
