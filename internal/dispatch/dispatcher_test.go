// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/biogate/biogate/internal/backend"
	"github.com/biogate/biogate/internal/backend/backendtest"
	"github.com/biogate/biogate/internal/biometric"
	"github.com/biogate/biogate/internal/lockout"
	"github.com/biogate/biogate/internal/restart"
	"github.com/biogate/biogate/pkg/errutil"
)

const wait = 2 * time.Second

var (
	fpDesc   = biometric.Descriptor{ID: 10, Name: "fp-test", Type: biometric.Fingerprint}
	faceDesc = biometric.Descriptor{ID: 20, Name: "face-test", Type: biometric.Face}
)

// collector records events delivered on the loop.
type collector struct {
	mu     sync.Mutex
	events []biometric.Event
}

func (c *collector) OnEvent(ev biometric.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) snapshot() []biometric.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]biometric.Event(nil), c.events...)
}

func nextCall(t *testing.T, f *backendtest.Fake) *backendtest.Call {
	t.Helper()
	call, ok := f.NextCall(wait)
	require.True(t, ok, "backend %s was not started", f.Descriptor().Name)
	return call
}

func TestDispatcher_RelaysEventsWithMappedType(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := New()
	defer d.Close()
	fp := backendtest.New(fpDesc, nil)
	face := backendtest.New(faceDesc, nil)
	d.RegisterActive([]backend.Backend{fp, face})

	var c collector
	purpose := &biometric.CryptoPurpose{Name: "unlock"}
	require.NoError(t, d.Start(context.Background(), purpose, &c, restart.Default()))

	fpCall := nextCall(t, fp)
	faceCall := nextCall(t, face)
	assert.Same(t, purpose, fpCall.Purpose)

	faceCall.Callback.Help(biometric.HelpPartial, "hold still")
	fpCall.Callback.Succeeded(nil)
	d.Loop().Flush()

	events := c.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, biometric.Face, events[0].Type)
	assert.Equal(t, faceDesc.ID, events[0].BackendID)
	assert.Equal(t, biometric.OutcomeHelp, events[0].Outcome.Kind)
	assert.Equal(t, biometric.Fingerprint, events[1].Type)
	assert.Equal(t, biometric.OutcomeSuccess, events[1].Outcome.Kind)
	assert.False(t, events[1].At.IsZero())
}

func TestDispatcher_RefusesBackendsFailingPreconditions(t *testing.T) {
	store := lockout.NewMemoryStore()
	require.NoError(t, store.SetPermanentlyLocked(context.Background(), biometric.Face))

	tests := []struct {
		name string
		fake *backendtest.Fake
	}{
		{"not enrolled", backendtest.New(fpDesc, nil, backendtest.NotEnrolled())},
		{"absent", backendtest.New(fpDesc, nil, backendtest.Absent())},
		{"permanently locked", backendtest.New(faceDesc, store)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)

			d := New()
			var c collector
			err := d.StartBackend(context.Background(), tt.fake, nil, &c, restart.Default())
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, biometric.CodeBackendNotReady)
			d.Close()

			assert.Empty(t, tt.fake.Calls())
			events := c.snapshot()
			require.Len(t, events, 1)
			assert.Equal(t, biometric.Failure(biometric.ReasonInternalError, true), events[0].Outcome)
			assert.Equal(t, tt.fake.Descriptor().Type, events[0].Type)
		})
	}
}

func TestDispatcher_RestartCancelsStaleToken(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := New()
	defer d.Close()
	fp := backendtest.New(fpDesc, nil)
	var c collector

	require.NoError(t, d.StartBackend(context.Background(), fp, nil, &c, restart.Default()))
	first := nextCall(t, fp)
	require.NoError(t, d.StartBackend(context.Background(), fp, nil, &c, restart.Default()))
	second := nextCall(t, fp)

	assert.True(t, first.Token.Canceled())
	assert.False(t, second.Token.Canceled())

	first.Callback.Succeeded(nil)
	d.Loop().Flush()
	assert.Empty(t, c.snapshot(), "events from a stale call are dropped")
}

func TestDispatcher_CancelIsScopedAndIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := New()
	defer d.Close()
	fp := backendtest.New(fpDesc, nil)
	face := backendtest.New(faceDesc, nil)
	d.RegisterActive([]backend.Backend{fp, face})
	var c collector
	require.NoError(t, d.Start(context.Background(), nil, &c, restart.Default()))
	fpCall := nextCall(t, fp)
	faceCall := nextCall(t, face)

	d.Cancel(fpDesc.ID)
	d.Cancel(fpDesc.ID)
	d.Cancel(999)

	assert.True(t, fpCall.Token.Canceled())
	assert.False(t, faceCall.Token.Canceled(), "siblings are unaffected")

	d.CancelAll()
	d.CancelAll()
	assert.True(t, faceCall.Token.Canceled())
}

func TestDispatcher_RegisterActiveKeepsPresentBackends(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := New()
	defer d.Close()
	fp := backendtest.New(fpDesc, nil)
	face := backendtest.New(faceDesc, nil, backendtest.Absent())

	d.RegisterActive([]backend.Backend{fp, face})
	assert.Equal(t, []int{fpDesc.ID}, d.Active())

	var c collector
	require.NoError(t, d.Start(context.Background(), nil, &c, restart.Default()))
	call := nextCall(t, fp)

	d.RegisterActive(nil)
	assert.Empty(t, d.Active())
	assert.True(t, call.Token.Canceled(), "dropped backends are cancelled")
}

func TestDispatcher_PanicBecomesInternalError(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := New()
	fp := backendtest.New(fpDesc, nil, backendtest.OnAuthenticate(func(*backendtest.Call) {
		panic("vendor sdk exploded")
	}))
	var c collector
	require.NoError(t, d.StartBackend(context.Background(), fp, nil, &c, restart.Default()))
	require.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, wait, time.Millisecond)
	d.Close()

	assert.Equal(t, biometric.Failure(biometric.ReasonInternalError, true), c.snapshot()[0].Outcome)
}

func TestDispatcher_UserCancelRelayIsDelivered(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := New()
	defer d.Close()
	fp := backendtest.New(fpDesc, nil)
	var c collector
	require.NoError(t, d.StartBackend(context.Background(), fp, nil, &c, restart.Default()))
	call := nextCall(t, fp)

	assert.Equal(t, backend.Stop, call.Callback.Error(backend.CodeUserCanceled))
	d.Loop().Flush()

	events := c.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, biometric.OutcomeCanceled, events[0].Outcome.Kind)
}

func TestDispatcher_StartAfterCloseFails(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := New()
	d.Close()
	err := d.StartBackend(context.Background(), backendtest.New(fpDesc, nil), nil, &collector{}, nil)
	require.Error(t, err)
}
