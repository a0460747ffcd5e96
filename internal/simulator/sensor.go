// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package simulator

import (
	"crypto/sha256"
	"sync/atomic"
	"time"

	"github.com/biogate/biogate/internal/backend"
	"github.com/biogate/biogate/internal/biometric"
	"github.com/biogate/biogate/internal/restart"
)

// device holds the state shared by every simulated backend.
type device struct {
	backend.Base
	present    atomic.Bool
	accessible bool
	enrolled   atomic.Bool
	cbOpts     []backend.CallbackOption
}

func newDevice(d biometric.Descriptor, env backend.Env, s *Sensor) *device {
	dev := &device{
		Base:       backend.NewBase(d, env),
		accessible: flag(s.Accessible),
	}
	dev.present.Store(flag(s.Present))
	dev.enrolled.Store(flag(s.Enrolled))
	if s.SkipWindow != "" {
		window, _ := parseDuration(s.SkipWindow)
		dev.cbOpts = append(dev.cbOpts, backend.WithSkipWindow(window))
	}
	return dev
}

// IsManagerAccessible implements backend.Backend.
func (d *device) IsManagerAccessible() bool { return d.accessible }

// IsHardwarePresent implements backend.Backend.
func (d *device) IsHardwarePresent() bool { return d.present.Load() }

// HasEnrolled implements backend.Backend.
func (d *device) HasEnrolled() bool { return d.enrolled.Load() }

// crypto derives deterministic material for a successful match.
func (d *device) crypto(purpose *biometric.CryptoPurpose) *biometric.CryptoObject {
	if purpose == nil {
		return nil
	}
	sum := sha256.Sum256([]byte(d.Descriptor().Name + "/" + purpose.Name))
	return &biometric.CryptoObject{Purpose: purpose.Name, Material: sum[:]}
}

// apply feeds one decoded report into the callback.
func (d *device) apply(cb *backend.Callback, st step, purpose *biometric.CryptoPurpose) backend.Verdict {
	switch st.event {
	case EventSuccess:
		return cb.Succeeded(d.crypto(purpose))
	case EventFailed:
		return cb.Failed()
	case EventError:
		return cb.Error(st.code)
	case EventHelp:
		return cb.Help(st.help, st.message)
	default:
		return backend.Ignore
	}
}

// idle keeps the simulated hardware listening until the call is canceled.
func idle(token *backend.Token, cb *backend.Callback) {
	<-token.Done()
	cb.Error(backend.CodeCanceled)
}

// pause waits d or until the token is canceled. It reports whether the
// call is still live.
func pause(token *backend.Token, d time.Duration) bool {
	if d <= 0 {
		return !token.Canceled()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return !token.Canceled()
	case <-token.Done():
		return false
	}
}

// scripted replays a fixed list of hardware reports on every call.
type scripted struct {
	*device
	steps []step
}

var _ backend.Backend = (*scripted)(nil)

// Authenticate implements backend.Backend.
func (s *scripted) Authenticate(token *backend.Token, purpose *biometric.CryptoPurpose, sink backend.Sink, pred restart.Predicate) {
	cb := s.NewCallback(token, sink, pred, s.cbOpts...)
	for i, st := range s.steps {
		if !pause(token, st.after) {
			cb.Error(backend.CodeCanceled)
			return
		}
		v := s.apply(cb, st, purpose)
		s.Logger().Debug("scripted report", "step", i, "event", st.event, "verdict", v.String())
		if v == backend.Stop {
			return
		}
	}
	idle(token, cb)
}
