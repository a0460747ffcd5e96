// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package backendtest

import (
	"sync"
	"time"

	"github.com/biogate/biogate/internal/backend"
	"github.com/biogate/biogate/internal/biometric"
)

// Recorded is one event captured by a Recorder.
type Recorded struct {
	ID      int
	Outcome biometric.Outcome
}

// Recorder is a Sink that keeps every event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
	notify chan struct{}
}

var _ backend.Sink = (*Recorder)(nil)

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

func (r *Recorder) add(id int, o biometric.Outcome) {
	r.mu.Lock()
	r.events = append(r.events, Recorded{ID: id, Outcome: o})
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// OnSuccess implements backend.Sink.
func (r *Recorder) OnSuccess(id int, crypto *biometric.CryptoObject) {
	r.add(id, biometric.Success(crypto))
}

// OnFailure implements backend.Sink.
func (r *Recorder) OnFailure(id int, reason biometric.FailureReason, fatal bool) {
	r.add(id, biometric.Failure(reason, fatal))
}

// OnHelp implements backend.Sink.
func (r *Recorder) OnHelp(id int, help biometric.HelpReason, msg string) {
	r.add(id, biometric.Help(help, msg))
}

// OnCanceled implements backend.Sink.
func (r *Recorder) OnCanceled(id int) {
	r.add(id, biometric.Canceled())
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.events...)
}

// WaitFor blocks until at least n events were recorded or timeout passes.
func (r *Recorder) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		r.mu.Lock()
		got := len(r.events)
		r.mu.Unlock()
		if got >= n {
			return true
		}
		select {
		case <-r.notify:
		case <-deadline:
			return false
		}
	}
}
