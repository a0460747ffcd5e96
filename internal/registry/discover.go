// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package registry

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/sync/errgroup"

	"github.com/biogate/biogate/internal/backend"
	"github.com/biogate/biogate/internal/biometric"
)

// BackendFunc receives each candidate's initialization result. b is nil
// when the backend failed to initialize or is not ready.
type BackendFunc func(d biometric.Descriptor, b backend.Backend)

// candidates returns the entries a discovery pass for types initializes.
func (r *Registry) candidates(types []biometric.Type) []entry {
	all := len(types) == 0 || slices.Contains(types, biometric.Any)
	wanted := func(d biometric.Descriptor) bool {
		if !all && !slices.Contains(types, d.Type) {
			return false
		}
		for _, g := range r.excludes {
			if g.Match(d.Name) {
				return false
			}
		}
		return true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []entry
	for _, d := range r.catalog {
		factory, bound := r.bindings[d.Name]
		if !bound || !wanted(d) || !r.admits(d) {
			continue
		}
		out = append(out, entry{desc: d, factory: factory})
	}
	for _, e := range r.custom {
		if wanted(e.desc) && r.admits(e.desc) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b entry) int { return a.desc.ID - b.desc.ID })
	return out
}

// admits checks d's platform constraint against the configured level.
func (r *Registry) admits(d biometric.Descriptor) bool {
	if d.Platform == "" {
		return true
	}
	c, err := semver.NewConstraint(d.Platform)
	if err != nil {
		r.logger.Warn("invalid platform constraint", "backend", d.Name, "constraint", d.Platform, "error", err)
		return false
	}
	return c.Check(r.platform)
}

// Discover initializes every candidate backend concurrently and replaces
// the ready set once all of them reported. onBackend fires once per
// candidate as soon as it finishes; onReady fires exactly once after the
// ready set was replaced. Callbacks are serialized and may be nil.
//
// Discover returns false without doing anything while another pass runs.
// With zero candidates the ready set is emptied and onReady fires before
// Discover returns.
func (r *Registry) Discover(ctx context.Context, types []biometric.Type, onBackend BackendFunc, onReady func()) bool {
	if !r.discovering.CompareAndSwap(false, true) {
		r.logger.Debug("discovery already running")
		return false
	}
	started := time.Now()
	cands := r.candidates(types)
	r.logger.Info("discovery started", "candidates", len(cands), "platform", r.platform.String())

	if len(cands) == 0 {
		r.finish(map[int]backend.Backend{}, started, onReady)
		return true
	}

	var (
		cbMu      sync.Mutex
		remaining atomic.Int32
		found     = make(map[int]backend.Backend, len(cands))
	)
	remaining.Store(int32(len(cands)))

	report := func(d biometric.Descriptor, b backend.Backend) {
		cbMu.Lock()
		defer cbMu.Unlock()
		if b != nil {
			found[d.ID] = b
		}
		if onBackend != nil {
			onBackend(d, b)
		}
		if remaining.Add(-1) == 0 {
			r.finish(found, started, onReady)
		}
	}

	go func() {
		var g errgroup.Group
		if r.workers > 0 {
			g.SetLimit(r.workers)
		}
		for _, c := range cands {
			g.Go(func() error {
				report(c.desc, r.initialize(ctx, c))
				return nil
			})
		}
		_ = g.Wait()
	}()
	return true
}

// finish swaps in the new ready set and releases the discovery flag.
func (r *Registry) finish(found map[int]backend.Backend, started time.Time, onReady func()) {
	r.mu.Lock()
	r.ready = found
	r.mu.Unlock()
	r.passes.Add(1)
	r.discovering.Store(false)
	r.logger.Info("discovery finished", "ready", len(found), "duration", time.Since(started))
	if onReady != nil {
		onReady()
	}
}

// initialize runs one factory and reports the backend only when its
// manager is accessible and its hardware present.
func (r *Registry) initialize(ctx context.Context, e entry) (b backend.Backend) {
	logger := r.logger.With("backend", e.desc.Name, "backend_id", e.desc.ID)
	defer func() {
		if p := recover(); p != nil {
			logger.Error("backend initialization panicked", "panic", fmt.Sprint(p))
			b = nil
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.initTimeout)
	defer cancel()

	inst, err := e.factory(ctx, e.desc, r.env)
	if err != nil {
		logger.Debug("backend initialization failed", "error", err)
		return nil
	}
	if inst == nil {
		return nil
	}
	accessible, present := inst.IsManagerAccessible(), inst.IsHardwarePresent()
	logger.Debug("backend initialized", "accessible", accessible, "present", present)
	if !accessible || !present {
		return nil
	}
	return inst
}

// DiscoverAndWait runs a discovery pass and blocks until it completes or
// ctx is done.
func (r *Registry) DiscoverAndWait(ctx context.Context, types []biometric.Type) error {
	done := make(chan struct{})
	if !r.Discover(ctx, types, nil, func() { close(done) }) {
		return biometric.ErrDiscoveryInProgress()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
