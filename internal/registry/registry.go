// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

// Package registry discovers which sensor backends are usable on the
// current device and holds the ready set between discovery passes.
package registry

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/biogate/biogate/internal/backend"
	"github.com/biogate/biogate/internal/biometric"
)

// DefaultPlatform is the platform level assumed when none is configured.
const DefaultPlatform = "29"

// DefaultInitTimeout bounds one backend's initialization.
const DefaultInitTimeout = 10 * time.Second

type entry struct {
	desc    biometric.Descriptor
	factory backend.Factory
}

// Registry holds the known backends and the ready subset found by the most
// recent discovery pass.
type Registry struct {
	logger      *slog.Logger
	env         backend.Env
	platform    *semver.Version
	workers     int
	initTimeout time.Duration
	excludes    []glob.Glob
	catalog     []biometric.Descriptor

	mu       sync.RWMutex
	bindings map[string]backend.Factory
	custom   map[int]entry
	ready    map[int]backend.Backend

	discovering atomic.Bool
	passes      atomic.Int64
}

// Option configures a Registry.
type Option func(*Registry) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) error {
		r.logger = logger
		return nil
	}
}

// WithEnv sets the collaborators handed to factories.
func WithEnv(env backend.Env) Option {
	return func(r *Registry) error {
		r.env = env
		return nil
	}
}

// WithPlatform sets the platform capability level catalog entries are
// checked against, e.g. "29" or "14.1".
func WithPlatform(level string) Option {
	return func(r *Registry) error {
		v, err := semver.NewVersion(level)
		if err != nil {
			return oops.Code(biometric.CodeInvalidConfig).
				With("platform", level).
				Wrapf(err, "invalid platform level")
		}
		r.platform = v
		return nil
	}
}

// WithWorkers bounds concurrent initializations. Zero or less starts every
// candidate at once, which is the default.
func WithWorkers(n int) Option {
	return func(r *Registry) error {
		r.workers = max(n, 0)
		return nil
	}
}

// WithInitTimeout bounds each backend's initialization.
func WithInitTimeout(d time.Duration) Option {
	return func(r *Registry) error {
		r.initTimeout = d
		return nil
	}
}

// WithExclude skips backends whose name matches any of the glob patterns.
func WithExclude(patterns ...string) Option {
	return func(r *Registry) error {
		for _, p := range patterns {
			g, err := glob.Compile(p)
			if err != nil {
				return oops.Code(biometric.CodeInvalidConfig).
					With("pattern", p).
					Wrapf(err, "invalid exclude pattern")
			}
			r.excludes = append(r.excludes, g)
		}
		return nil
	}
}

// WithCatalog replaces the built-in catalog.
func WithCatalog(catalog []biometric.Descriptor) Option {
	return func(r *Registry) error {
		r.catalog = slices.Clone(catalog)
		return nil
	}
}

// New creates an empty registry. Nothing is ready until Discover completes.
func New(opts ...Option) (*Registry, error) {
	r := &Registry{
		logger:      slog.Default(),
		platform:    semver.MustParse(DefaultPlatform),
		initTimeout: DefaultInitTimeout,
		catalog:     slices.Clone(Catalog),
		bindings:    make(map[string]backend.Factory),
		custom:      make(map[int]entry),
		ready:       make(map[int]backend.Backend),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Platform returns the configured platform level.
func (r *Registry) Platform() *semver.Version { return r.platform }

// Bind attaches a driver factory to the catalog entry called name. It
// reports false when the catalog has no such entry.
func (r *Registry) Bind(name string, factory backend.Factory) bool {
	if _, ok := lookupCatalog(r.catalog, func(d biometric.Descriptor) bool { return d.Name == name }); !ok {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[name] = factory
	return true
}

// Register adds a custom backend considered by every later discovery pass.
// Duplicate ids, whether against the catalog or an earlier registration,
// are rejected and the first registration wins.
func (r *Registry) Register(d biometric.Descriptor, factory backend.Factory) bool {
	if factory == nil || !d.Type.Valid() || d.Type == biometric.Any {
		return false
	}
	if _, ok := lookupCatalog(r.catalog, func(c biometric.Descriptor) bool { return c.ID == d.ID }); ok {
		r.logger.Warn("custom backend rejected", "error", biometric.ErrDuplicateDescriptor(d))
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.custom[d.ID]; dup {
		r.logger.Warn("custom backend rejected", "error", biometric.ErrDuplicateDescriptor(d))
		return false
	}
	r.custom[d.ID] = entry{desc: d, factory: factory}
	return true
}

// Backends returns the ready backends ordered by priority.
func (r *Registry) Backends() []backend.Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]backend.Backend, 0, len(r.ready))
	for _, b := range r.ready {
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b backend.Backend) int {
		return a.Descriptor().ID - b.Descriptor().ID
	})
	return out
}

// Best returns the highest-priority ready backend servicing t.
func (r *Registry) Best(t biometric.Type) (backend.Backend, bool) {
	for _, b := range r.Backends() {
		if b.Descriptor().Type == t {
			return b, true
		}
	}
	return nil, false
}

// AvailableTypes returns the types serviced by at least one ready backend.
func (r *Registry) AvailableTypes() []biometric.Type {
	var types []biometric.Type
	for _, b := range r.Backends() {
		if t := b.Descriptor().Type; !slices.Contains(types, t) {
			types = append(types, t)
		}
	}
	slices.Sort(types)
	return types
}

// Ready reports whether at least one discovery pass has completed.
func (r *Registry) Ready() bool {
	return r.passes.Load() > 0
}

// Discovering reports whether a discovery pass is running.
func (r *Registry) Discovering() bool {
	return r.discovering.Load()
}

// IsHardwareDetected reports whether any ready backend sees its hardware.
func (r *Registry) IsHardwareDetected() bool {
	return slices.ContainsFunc(r.Backends(), backend.Backend.IsHardwarePresent)
}

// HasEnrolled reports whether any ready backend has an enrollment.
func (r *Registry) HasEnrolled() bool {
	return slices.ContainsFunc(r.Backends(), backend.Backend.HasEnrolled)
}

// IsLockedOut reports whether every available type's best backend is locked.
func (r *Registry) IsLockedOut() bool {
	types := r.AvailableTypes()
	if len(types) == 0 {
		return false
	}
	for _, t := range types {
		if b, ok := r.Best(t); ok && !b.IsLockedOut() {
			return false
		}
	}
	return true
}
