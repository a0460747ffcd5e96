// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package engine_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/biogate/biogate/internal/backend"
	"github.com/biogate/biogate/internal/backend/backendtest"
	"github.com/biogate/biogate/internal/biometric"
	"github.com/biogate/biogate/internal/dispatch"
	"github.com/biogate/biogate/internal/engine"
	"github.com/biogate/biogate/internal/registry"
	"github.com/biogate/biogate/internal/restart"
	"github.com/biogate/biogate/internal/session"
	"github.com/biogate/biogate/pkg/errutil"
)

var (
	fpDesc   = biometric.Descriptor{ID: 100, Name: "fp-sim", Type: biometric.Fingerprint}
	faceDesc = biometric.Descriptor{ID: 200, Name: "face-sim", Type: biometric.Face}
)

const wait = 2 * time.Second

var _ = Describe("Engine", func() {
	var (
		ctx   context.Context
		store *countingStore
		reg   *registry.Registry
		eng   *engine.Engine
		fp    *backendtest.Fake
		face  *backendtest.Fake
		rec   *outcomeRecorder
	)

	// setup registers the given fakes and runs a discovery pass.
	setup := func(fakes ...*backendtest.Fake) {
		var err error
		reg, err = registry.New(registry.WithCatalog(nil))
		Expect(err).NotTo(HaveOccurred())
		for _, f := range fakes {
			Expect(reg.Register(f.Descriptor(), backendtest.Factory(f))).To(BeTrue())
		}
		eng = engine.New(reg, store, engine.WithRediscoverOnCancel(false))
		Expect(eng.Discover(ctx, nil)).To(Succeed())
	}

	nextCall := func(f *backendtest.Fake) *backendtest.Call {
		call, ok := f.NextCall(wait)
		Expect(ok).To(BeTrue(), "backend %s was not started", f.Descriptor().Name)
		return call
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = newCountingStore()
		fp = backendtest.New(fpDesc, store)
		face = backendtest.New(faceDesc, store)
		rec = newOutcomeRecorder()
	})

	AfterEach(func() {
		if eng != nil {
			eng.Close()
		}
		eng = nil
	})

	Describe("policy ANY", func() {
		It("succeeds on the first success and cancels the pending backend", func() {
			setup(fp, face)
			_, err := eng.Authenticate(ctx, engine.Request{
				Secondary: []biometric.Type{biometric.Fingerprint, biometric.Face},
				Policy:    session.PolicyAny,
				Predicate: restart.Default(),
			}, rec)
			Expect(err).NotTo(HaveOccurred())

			fpCall, faceCall := nextCall(fp), nextCall(face)
			Expect(fpCall.Callback.Succeeded(&biometric.CryptoObject{Purpose: "unlock"})).To(Equal(backend.Stop))

			Eventually(rec.done).WithTimeout(wait).Should(BeClosed())
			Expect(rec.SucceededTypes()).To(Equal([]biometric.Type{biometric.Fingerprint}))
			Expect(faceCall.Token.Canceled()).To(BeTrue())
			Expect(rec.Terminals()).To(Equal(1))

			_, active := eng.Active()
			Expect(active).To(BeFalse())
		})

		It("ignores outcomes reported after the decision", func() {
			setup(fp, face)
			_, err := eng.Authenticate(ctx, engine.Request{
				Secondary: []biometric.Type{biometric.Fingerprint, biometric.Face},
				Policy:    session.PolicyAny,
			}, rec)
			Expect(err).NotTo(HaveOccurred())

			fpCall, faceCall := nextCall(fp), nextCall(face)
			fpCall.Callback.Succeeded(nil)
			Eventually(rec.done).WithTimeout(wait).Should(BeClosed())

			faceCall.Sink.OnSuccess(faceDesc.ID, nil)
			Consistently(rec.Terminals).WithTimeout(100 * time.Millisecond).Should(Equal(1))
		})
	})

	Describe("policy ALL", func() {
		It("degrades to the succeeded types once every type finished", func() {
			setup(fp, face)
			_, err := eng.Authenticate(ctx, engine.Request{
				Secondary:  []biometric.Type{biometric.Fingerprint, biometric.Face},
				Policy:     session.PolicyAll,
				DegradeAll: true,
				Predicate:  restart.Never(),
			}, rec)
			Expect(err).NotTo(HaveOccurred())

			fpCall, faceCall := nextCall(fp), nextCall(face)
			fpCall.Callback.Succeeded(nil)
			Consistently(rec.done).WithTimeout(100 * time.Millisecond).ShouldNot(BeClosed())

			faceCall.Sink.OnFailure(faceDesc.ID, biometric.ReasonAuthenticationFailed, true)
			Eventually(rec.done).WithTimeout(wait).Should(BeClosed())
			Expect(rec.SucceededTypes()).To(Equal([]biometric.Type{biometric.Fingerprint}))
		})

		It("fails when strict and one type failed", func() {
			setup(fp, face)
			_, err := eng.Authenticate(ctx, engine.Request{
				Secondary: []biometric.Type{biometric.Fingerprint, biometric.Face},
				Policy:    session.PolicyAll,
			}, rec)
			Expect(err).NotTo(HaveOccurred())

			fpCall, faceCall := nextCall(fp), nextCall(face)
			faceCall.Sink.OnFailure(faceDesc.ID, biometric.ReasonAuthenticationFailed, true)
			fpCall.Callback.Succeeded(nil)

			Eventually(rec.done).WithTimeout(wait).Should(BeClosed())
			reason, failed := rec.Failure()
			Expect(failed).To(BeTrue())
			Expect(reason).To(Equal(biometric.ReasonAuthenticationFailed))
		})
	})

	Describe("restart budget", func() {
		It("escalates to a temporary lockout without persisting it", func() {
			setup(fp)
			const budget = 3
			_, err := eng.Authenticate(ctx, engine.Request{
				Primary:   []biometric.Type{biometric.Fingerprint},
				Policy:    session.PolicyAny,
				Predicate: restart.DefaultWithBudget(budget),
			}, rec)
			Expect(err).NotTo(HaveOccurred())

			call := nextCall(fp)
			for range budget {
				Expect(call.Callback.Failed()).To(Equal(backend.Continue))
			}
			Expect(call.Callback.Failed()).To(Equal(backend.Stop))

			Eventually(rec.done).WithTimeout(wait).Should(BeClosed())
			reason, failed := rec.Failure()
			Expect(failed).To(BeTrue())
			Expect(reason).To(Equal(biometric.ReasonLockedOut))
			Expect(store.sets.Load()).To(BeZero())
			Expect(fp.Lockout().TemporarilyLocked()).To(BeTrue())
			Expect(fp.Lockout().PermanentlyLocked()).To(BeFalse())

			By("reporting the lockout to the next session")
			next := newOutcomeRecorder()
			_, err = eng.Authenticate(ctx, engine.Request{Primary: []biometric.Type{biometric.Fingerprint}}, next)
			Expect(err).NotTo(HaveOccurred())
			Eventually(next.done).WithTimeout(wait).Should(BeClosed())
			reason, _ = next.Failure()
			Expect(reason).To(Equal(biometric.ReasonLockedOut))
		})
	})

	Describe("permanent lockout", func() {
		It("persists once and keeps the backend out of later sessions", func() {
			setup(fp)
			_, err := eng.Authenticate(ctx, engine.Request{
				Primary: []biometric.Type{biometric.Fingerprint},
				Policy:  session.PolicyAny,
			}, rec)
			Expect(err).NotTo(HaveOccurred())

			call := nextCall(fp)
			Expect(call.Callback.Error(backend.CodeLockoutPermanent)).To(Equal(backend.Stop))
			Expect(call.Callback.Error(backend.CodeLockoutPermanent)).To(Equal(backend.Stop))

			Eventually(rec.done).WithTimeout(wait).Should(BeClosed())
			reason, _ := rec.Failure()
			Expect(reason).To(Equal(biometric.ReasonPermanentlyLocked))
			Expect(store.sets.Load()).To(Equal(int32(1)))

			Expect(eng.Discover(ctx, []biometric.Type{biometric.Fingerprint})).To(Succeed())
			b, ok := reg.Best(biometric.Fingerprint)
			Expect(ok).To(BeTrue())
			Expect(b.IsLockedOut()).To(BeTrue())

			By("refusing a forced start")
			var (
				mu     sync.Mutex
				events []biometric.Event
			)
			d := dispatch.New()
			err = d.StartBackend(ctx, b, nil, dispatch.ListenerFunc(func(ev biometric.Event) {
				mu.Lock()
				events = append(events, ev)
				mu.Unlock()
			}), restart.Never())
			Expect(errutil.Code(err)).To(Equal(biometric.CodeBackendNotReady))
			d.Loop().Flush()
			d.Close()
			mu.Lock()
			Expect(events).To(HaveLen(1))
			Expect(events[0].Outcome.Reason).To(Equal(biometric.ReasonInternalError))
			Expect(events[0].Outcome.Fatal).To(BeTrue())
			mu.Unlock()

			By("failing the next session without starting the backend")
			next := newOutcomeRecorder()
			_, err = eng.Authenticate(ctx, engine.Request{Primary: []biometric.Type{biometric.Fingerprint}}, next)
			Expect(err).NotTo(HaveOccurred())
			Eventually(next.done).WithTimeout(wait).Should(BeClosed())
			reason, _ = next.Failure()
			Expect(reason).To(Equal(biometric.ReasonPermanentlyLocked))

			By("clearing on reset")
			Expect(eng.ResetLockout(ctx)).To(Succeed())
			Expect(b.IsLockedOut()).To(BeFalse())
		})
	})

	Describe("primary types", func() {
		It("keeps a separate slot for each primary backend", func() {
			setup(fp, face)
			_, err := eng.Authenticate(ctx, engine.Request{
				Primary: []biometric.Type{biometric.Any},
				Policy:  session.PolicyAny,
			}, rec)
			Expect(err).NotTo(HaveOccurred())

			fpCall, faceCall := nextCall(fp), nextCall(face)
			faceCall.Sink.OnFailure(faceDesc.ID, biometric.ReasonHardwareUnavailable, true)
			Consistently(rec.Terminals).WithTimeout(100 * time.Millisecond).Should(Equal(0))
			Expect(fpCall.Token.Canceled()).To(BeFalse())

			fpCall.Callback.Succeeded(nil)
			Eventually(rec.done).WithTimeout(wait).Should(BeClosed())
			Expect(rec.SucceededTypes()).To(Equal([]biometric.Type{biometric.Fingerprint}))
		})

		It("waits for every primary type under ALL", func() {
			setup(fp, face)
			_, err := eng.Authenticate(ctx, engine.Request{
				Primary:    []biometric.Type{biometric.Fingerprint, biometric.Face},
				Policy:     session.PolicyAll,
				DegradeAll: true,
				Predicate:  restart.Never(),
			}, rec)
			Expect(err).NotTo(HaveOccurred())

			fpCall, faceCall := nextCall(fp), nextCall(face)
			fpCall.Callback.Succeeded(nil)
			Consistently(rec.Terminals).WithTimeout(100 * time.Millisecond).Should(Equal(0))
			Expect(faceCall.Token.Canceled()).To(BeFalse())

			faceCall.Sink.OnFailure(faceDesc.ID, biometric.ReasonAuthenticationFailed, true)
			Eventually(rec.done).WithTimeout(wait).Should(BeClosed())
			Expect(rec.SucceededTypes()).To(Equal([]biometric.Type{biometric.Fingerprint}))
		})
	})

	Describe("session lifecycle", func() {
		It("rejects a second concurrent session", func() {
			setup(fp)
			_, err := eng.Authenticate(ctx, engine.Request{Primary: []biometric.Type{biometric.Fingerprint}}, rec)
			Expect(err).NotTo(HaveOccurred())
			nextCall(fp)

			_, err = eng.Authenticate(ctx, engine.Request{Primary: []biometric.Type{biometric.Fingerprint}}, newOutcomeRecorder())
			Expect(errutil.Code(err)).To(Equal(biometric.CodeSessionInProgress))
		})

		It("notifies cancellation exactly once", func() {
			setup(fp, face)
			id, err := eng.Authenticate(ctx, engine.Request{
				Primary: []biometric.Type{biometric.Any},
			}, rec)
			Expect(err).NotTo(HaveOccurred())
			fpCall, faceCall := nextCall(fp), nextCall(face)

			active, ok := eng.Active()
			Expect(ok).To(BeTrue())
			Expect(active).To(Equal(id))
			Expect(eng.Status().Session).To(Equal(id.String()))

			Expect(eng.Cancel()).To(BeTrue())
			Eventually(rec.done).WithTimeout(wait).Should(BeClosed())
			Expect(rec.Canceled()).To(BeTrue())
			Expect(fpCall.Token.Canceled()).To(BeTrue())
			Expect(faceCall.Token.Canceled()).To(BeTrue())

			Expect(eng.Cancel()).To(BeFalse())
			Expect(rec.Terminals()).To(Equal(1))
		})

		It("forwards help without deciding", func() {
			setup(fp)
			_, err := eng.Authenticate(ctx, engine.Request{Primary: []biometric.Type{biometric.Fingerprint}}, rec)
			Expect(err).NotTo(HaveOccurred())
			call := nextCall(fp)

			Expect(call.Callback.Help(biometric.HelpPartial, "press harder")).To(Equal(backend.Ignore))
			Eventually(func() []string {
				rec.mu.Lock()
				defer rec.mu.Unlock()
				return append([]string(nil), rec.helps...)
			}).WithTimeout(wait).Should(ConsistOf("press harder"))
			Expect(rec.Terminals()).To(BeZero())
		})

		It("fails fast when nothing is enrolled", func() {
			face = backendtest.New(faceDesc, store, backendtest.NotEnrolled())
			setup(face)
			_, err := eng.Authenticate(ctx, engine.Request{Primary: []biometric.Type{biometric.Face}}, rec)
			Expect(err).NotTo(HaveOccurred())

			Eventually(rec.done).WithTimeout(wait).Should(BeClosed())
			reason, _ := rec.Failure()
			Expect(reason).To(Equal(biometric.ReasonNoBiometricsRegistered))
			Expect(face.Calls()).To(BeEmpty())
		})

		It("rejects requests after close", func() {
			setup(fp)
			eng.Close()
			_, err := eng.Authenticate(ctx, engine.Request{Primary: []biometric.Type{biometric.Fingerprint}}, rec)
			Expect(errutil.Code(err)).To(Equal(biometric.CodeEngineClosed))
		})
	})
})
