// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biogate/biogate/internal/biometric"
)

type recorder struct {
	helps     []string
	succeeded [][]Result
	failed    []biometric.FailureReason
	canceled  int
}

func (r *recorder) OnHelp(_ biometric.HelpReason, msg string) { r.helps = append(r.helps, msg) }
func (r *recorder) OnSucceeded(res []Result) { r.succeeded = append(r.succeeded, res) }
func (r *recorder) OnFailed(reason biometric.FailureReason) { r.failed = append(r.failed, reason) }
func (r *recorder) OnCanceled() { r.canceled++ }

func (r *recorder) notifications() int {
	return len(r.succeeded) + len(r.failed) + r.canceled
}

type cancelCounter struct{ n int }

func (c *cancelCounter) CancelAll() { c.n++ }

func ev(t biometric.Type, o biometric.Outcome) biometric.Event {
	return biometric.Event{Type: t, BackendID: int(t) * 10, Outcome: o}
}

func success(t biometric.Type) biometric.Event { return ev(t, biometric.Success(nil)) }

func fatal(t biometric.Type, r biometric.FailureReason) biometric.Event {
	return ev(t, biometric.Failure(r, true))
}

func resultTypes(rs []Result) []biometric.Type {
	out := make([]biometric.Type, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Type)
	}
	return out
}

func newAgg(cfg Config) (*Aggregator, *recorder, *cancelCounter) {
	rec := &recorder{}
	cc := &cancelCounter{}
	return New(cfg, cc, rec), rec, cc
}

var fpFace = []biometric.Type{biometric.Fingerprint, biometric.Face}

func TestAny_FirstSuccessFinishes(t *testing.T) {
	a, rec, cc := newAgg(Config{Policy: PolicyAny, Secondary: fpFace})

	a.OnEvent(success(biometric.Fingerprint))

	require.Len(t, rec.succeeded, 1)
	assert.Equal(t, []biometric.Type{biometric.Fingerprint}, resultTypes(rec.succeeded[0]))
	assert.Equal(t, 1, cc.n, "in-flight backends cancelled on finish")
	assert.True(t, a.Finished())

	a.OnEvent(fatal(biometric.Face, biometric.ReasonAuthenticationFailed))
	a.OnEvent(success(biometric.Face))
	a.Cancel()
	assert.Equal(t, 1, rec.notifications(), "late events never resurrect a session")
	assert.Equal(t, 1, cc.n)
}

func TestAny_AllFailedReportsLastReason(t *testing.T) {
	a, rec, _ := newAgg(Config{Policy: PolicyAny, Secondary: fpFace})

	a.OnEvent(fatal(biometric.Face, biometric.ReasonTimeout))
	assert.Zero(t, rec.notifications())
	a.OnEvent(fatal(biometric.Fingerprint, biometric.ReasonLockedOut))

	assert.Equal(t, []biometric.FailureReason{biometric.ReasonLockedOut}, rec.failed)
}

func TestAll_DegradedSucceedsWhenEveryTypeFinished(t *testing.T) {
	a, rec, cc := newAgg(Config{Policy: PolicyAll, DegradeAll: true, Secondary: fpFace})

	a.OnEvent(success(biometric.Fingerprint))
	assert.Zero(t, rec.notifications(), "ALL waits for every type")
	assert.Zero(t, cc.n)

	a.OnEvent(fatal(biometric.Face, biometric.ReasonAuthenticationFailed))
	require.Len(t, rec.succeeded, 1)
	assert.Equal(t, []biometric.Type{biometric.Fingerprint}, resultTypes(rec.succeeded[0]))
}

func TestAll_StrictRequiresEverySuccess(t *testing.T) {
	a, rec, _ := newAgg(Config{Policy: PolicyAll, DegradeAll: false, Secondary: fpFace})
	a.OnEvent(success(biometric.Fingerprint))
	a.OnEvent(fatal(biometric.Face, biometric.ReasonAuthenticationFailed))
	assert.Equal(t, []biometric.FailureReason{biometric.ReasonAuthenticationFailed}, rec.failed)

	a, rec, _ = newAgg(Config{Policy: PolicyAll, Secondary: fpFace})
	a.OnEvent(success(biometric.Face))
	a.OnEvent(success(biometric.Fingerprint))
	require.Len(t, rec.succeeded, 1)
	assert.Equal(t, fpFace, resultTypes(rec.succeeded[0]), "results follow desired order")
}

func TestNonTerminalEventsDoNotChangeSlots(t *testing.T) {
	a, rec, _ := newAgg(Config{Policy: PolicyAny, Secondary: fpFace})

	a.OnEvent(ev(biometric.Face, biometric.Failure(biometric.ReasonAuthenticationFailed, false)))
	a.OnEvent(ev(biometric.Face, biometric.Help(biometric.HelpTooFast, "slow down")))
	a.OnEvent(success(biometric.Iris))

	assert.Zero(t, rec.notifications())
	assert.Equal(t, []string{"slow down"}, rec.helps)
	assert.False(t, a.Finished())
}

func TestDuplicateTerminalEventsUseFirst(t *testing.T) {
	a, rec, _ := newAgg(Config{Policy: PolicyAll, DegradeAll: true, Secondary: fpFace})

	a.OnEvent(fatal(biometric.Face, biometric.ReasonLockedOut))
	a.OnEvent(success(biometric.Face))
	a.OnEvent(fatal(biometric.Fingerprint, biometric.ReasonTimeout))

	assert.Empty(t, rec.succeeded, "face stayed failed")
	assert.Equal(t, []biometric.FailureReason{biometric.ReasonTimeout}, rec.failed)
}

func TestBackendCancelCancelsSession(t *testing.T) {
	a, rec, cc := newAgg(Config{Policy: PolicyAll, Secondary: fpFace})

	a.OnEvent(success(biometric.Fingerprint))
	a.OnEvent(ev(biometric.Face, biometric.Canceled()))

	assert.Equal(t, 1, rec.canceled)
	assert.Empty(t, rec.succeeded)
	assert.Equal(t, 1, cc.n)
}

func TestExplicitCancel(t *testing.T) {
	a, rec, cc := newAgg(Config{Policy: PolicyAny, Secondary: fpFace})
	a.Cancel()
	a.Cancel()
	assert.Equal(t, 1, rec.canceled)
	assert.Equal(t, 1, cc.n)
}

func TestPrimaryTypesKeepTheirOwnSlots(t *testing.T) {
	t.Run("success reports only the owning type", func(t *testing.T) {
		a, rec, _ := newAgg(Config{Policy: PolicyAny, Primary: fpFace})

		a.OnEvent(success(biometric.Face))
		require.Len(t, rec.succeeded, 1)
		assert.Equal(t, []biometric.Type{biometric.Face}, resultTypes(rec.succeeded[0]))
	})

	t.Run("failure of one type leaves the other pending under any", func(t *testing.T) {
		a, rec, cc := newAgg(Config{Policy: PolicyAny, Primary: fpFace})

		a.OnEvent(fatal(biometric.Face, biometric.ReasonHardwareUnavailable))
		assert.Zero(t, rec.notifications(), "fingerprint still pending")
		assert.Zero(t, cc.n)

		a.OnEvent(success(biometric.Fingerprint))
		require.Len(t, rec.succeeded, 1)
		assert.Equal(t, []biometric.Type{biometric.Fingerprint}, resultTypes(rec.succeeded[0]))
	})

	t.Run("all waits for every primary type", func(t *testing.T) {
		a, rec, _ := newAgg(Config{Policy: PolicyAll, DegradeAll: true, Primary: fpFace})

		a.OnEvent(success(biometric.Fingerprint))
		assert.Zero(t, rec.notifications(), "face still pending")
		assert.False(t, a.Finished())

		a.OnEvent(fatal(biometric.Face, biometric.ReasonAuthenticationFailed))
		require.Len(t, rec.succeeded, 1)
		assert.Equal(t, []biometric.Type{biometric.Fingerprint}, resultTypes(rec.succeeded[0]))
	})
}

func TestInternalErrorFailsOnlyItsType(t *testing.T) {
	a, rec, _ := newAgg(Config{Policy: PolicyAny, Primary: fpFace})

	a.OnEvent(fatal(biometric.Face, biometric.ReasonInternalError))
	assert.Zero(t, rec.notifications(), "fingerprint still pending")

	a.OnEvent(success(biometric.Fingerprint))
	require.Len(t, rec.succeeded, 1)
	assert.Equal(t, []biometric.Type{biometric.Fingerprint}, resultTypes(rec.succeeded[0]))
}

// permutations returns every ordering of events.
func permutations(events []biometric.Event) [][]biometric.Event {
	if len(events) <= 1 {
		return [][]biometric.Event{append([]biometric.Event(nil), events...)}
	}
	var out [][]biometric.Event
	for i := range events {
		rest := make([]biometric.Event, 0, len(events)-1)
		rest = append(rest, events[:i]...)
		rest = append(rest, events[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]biometric.Event{events[i]}, p...))
		}
	}
	return out
}

func TestAll_IsPermutationInvariant(t *testing.T) {
	types := []biometric.Type{biometric.Fingerprint, biometric.Face, biometric.Iris, biometric.Voice}
	tests := []struct {
		name       string
		degrade    bool
		events     []biometric.Event
		wantOK     []biometric.Type
		wantFailed bool
	}{
		{
			name:    "degraded mixed outcomes",
			degrade: true,
			events: []biometric.Event{
				success(biometric.Fingerprint),
				fatal(biometric.Face, biometric.ReasonAuthenticationFailed),
				success(biometric.Iris),
				fatal(biometric.Voice, biometric.ReasonHardwareUnavailable),
			},
			wantOK: []biometric.Type{biometric.Fingerprint, biometric.Iris},
		},
		{
			name:    "strict all succeed",
			degrade: false,
			events: []biometric.Event{
				success(biometric.Fingerprint),
				success(biometric.Face),
				success(biometric.Iris),
				success(biometric.Voice),
			},
			wantOK: types,
		},
		{
			name:    "every type failed",
			degrade: true,
			events: []biometric.Event{
				fatal(biometric.Fingerprint, biometric.ReasonLockedOut),
				fatal(biometric.Face, biometric.ReasonLockedOut),
				fatal(biometric.Iris, biometric.ReasonLockedOut),
				fatal(biometric.Voice, biometric.ReasonLockedOut),
			},
			wantFailed: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, perm := range permutations(tt.events) {
				a, rec, _ := newAgg(Config{Policy: PolicyAll, DegradeAll: tt.degrade, Secondary: types})
				for i, e := range perm {
					if i < len(perm)-1 {
						a.OnEvent(e)
						require.Zero(t, rec.notifications(), "finished before every type was terminal")
						continue
					}
					a.OnEvent(e)
				}
				require.Equal(t, 1, rec.notifications())
				if tt.wantFailed {
					assert.Equal(t, []biometric.FailureReason{biometric.ReasonLockedOut}, rec.failed)
				} else {
					require.Len(t, rec.succeeded, 1)
					assert.Equal(t, tt.wantOK, resultTypes(rec.succeeded[0]))
				}
			}
		})
	}
}

func TestAny_SuccessFinishesRegardlessOfSiblings(t *testing.T) {
	events := []biometric.Event{
		success(biometric.Face),
		fatal(biometric.Fingerprint, biometric.ReasonTimeout),
		ev(biometric.Iris, biometric.Help(biometric.HelpGood, "ok")),
	}
	for _, perm := range permutations(events) {
		a, rec, _ := newAgg(Config{Policy: PolicyAny, Secondary: []biometric.Type{biometric.Fingerprint, biometric.Face, biometric.Iris}})
		for _, e := range perm {
			a.OnEvent(e)
			if e.Outcome.Kind == biometric.OutcomeSuccess {
				require.Len(t, rec.succeeded, 1, "finished on the first success")
			}
		}
		require.Len(t, rec.succeeded, 1)
		assert.Equal(t, []biometric.Type{biometric.Face}, resultTypes(rec.succeeded[0]))
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy(" ALL ")
	require.NoError(t, err)
	assert.Equal(t, PolicyAll, p)

	var q Policy
	require.NoError(t, q.UnmarshalText([]byte("any")))
	assert.Equal(t, PolicyAny, q)

	_, err = ParsePolicy("most")
	require.Error(t, err)
}
