// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package simulator

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/biogate/biogate/internal/backend"
	"github.com/biogate/biogate/internal/biometric"
	"github.com/biogate/biogate/internal/registry"
)

// Factory returns a backend factory for s. The descriptor the registry
// passes in wins over the sensor's own id and type, so the same sensor can
// stand in for a catalog driver.
func Factory(s Sensor) backend.Factory {
	return func(ctx context.Context, d biometric.Descriptor, env backend.Env) (backend.Backend, error) {
		if delay, _ := parseDuration(s.InitDelay); delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return nil, oops.With("sensor", s.Name).Wrapf(ctx.Err(), "initialization aborted")
			}
		}
		dev := newDevice(d, env, &s)
		if s.Lua != "" {
			return newScriptedLua(ctx, dev, s.Lua)
		}
		steps, err := s.steps()
		if err != nil {
			return nil, err
		}
		return &scripted{device: dev, steps: steps}, nil
	}
}

// Descriptor returns the custom descriptor of a sensor without a driver.
func (s *Sensor) Descriptor() (biometric.Descriptor, error) {
	t, err := biometric.ParseType(s.Type)
	if err != nil {
		return biometric.Descriptor{}, err
	}
	return biometric.Descriptor{ID: s.ID, Name: s.Name, Type: t, Platform: s.Platform}, nil
}

// Install registers every sensor of p with reg. Sensors naming a driver
// are bound to that catalog entry; the others are registered as custom
// backends.
func Install(reg *registry.Registry, p *Profile) error {
	for _, s := range p.Sensors {
		if s.Driver != "" {
			if !reg.Bind(s.Driver, Factory(s)) {
				return invalid(s.Name).With("driver", s.Driver).Errorf("unknown driver %q", s.Driver)
			}
			continue
		}
		d, err := s.Descriptor()
		if err != nil {
			return invalid(s.Name).Wrap(err)
		}
		if !reg.Register(d, Factory(s)) {
			return invalid(s.Name).Wrap(biometric.ErrDuplicateDescriptor(d))
		}
	}
	return nil
}
