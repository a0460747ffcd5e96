// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

// Package simulator builds backends from declarative device profiles so the
// engine can run without vendor hardware.
package simulator

import (
	"os"
	"regexp"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/biogate/biogate/internal/backend"
	"github.com/biogate/biogate/internal/biometric"
)

// Step events.
const (
	EventSuccess = "success"
	EventFailed  = "failed"
	EventError   = "error"
	EventHelp    = "help"
)

// Profile describes a simulated device.
type Profile struct {
	Platform string   `json:"platform,omitempty" yaml:"platform,omitempty" jsonschema:"description=Platform capability level the device reports"`
	Sensors  []Sensor `json:"sensors" yaml:"sensors" jsonschema:"minItems=1"`
}

// Sensor describes one simulated backend. It either binds a catalog
// driver by name or registers a custom descriptor with id and type.
type Sensor struct {
	Name       string `json:"name" yaml:"name" jsonschema:"pattern=^[a-z][a-z0-9-]*$"`
	Driver     string `json:"driver,omitempty" yaml:"driver,omitempty" jsonschema:"description=Catalog entry to bind instead of registering a custom backend"`
	ID         int    `json:"id,omitempty" yaml:"id,omitempty" jsonschema:"minimum=1"`
	Type       string `json:"type,omitempty" yaml:"type,omitempty"`
	Platform   string `json:"platform,omitempty" yaml:"platform,omitempty"`
	Present    *bool  `json:"present,omitempty" yaml:"present,omitempty"`
	Accessible *bool  `json:"accessible,omitempty" yaml:"accessible,omitempty"`
	Enrolled   *bool  `json:"enrolled,omitempty" yaml:"enrolled,omitempty"`
	InitDelay  string `json:"init_delay,omitempty" yaml:"init_delay,omitempty"`
	SkipWindow string `json:"skip_window,omitempty" yaml:"skip_window,omitempty"`
	Script     []Step `json:"script,omitempty" yaml:"script,omitempty"`
	Lua        string `json:"lua,omitempty" yaml:"lua,omitempty" jsonschema:"description=Lua source defining authenticate(attempt)"`
}

// Step is one hardware report of a scripted sensor.
type Step struct {
	After   string `json:"after,omitempty" yaml:"after,omitempty"`
	Event   string `json:"event" yaml:"event" jsonschema:"enum=success,enum=failed,enum=error,enum=help"`
	Code    string `json:"code,omitempty" yaml:"code,omitempty"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

func invalid(sensor string) oops.OopsErrorBuilder {
	b := oops.Code(biometric.CodeInvalidProfile)
	if sensor != "" {
		b = b.With("sensor", sensor)
	}
	return b
}

// ParseProfile validates data against the profile schema and decodes it.
func ParseProfile(data []byte) (*Profile, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, invalid("").Wrapf(err, "decode profile")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadProfile reads and parses the profile at path.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, invalid("").With("path", path).Wrapf(err, "read profile")
	}
	p, err := ParseProfile(data)
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return p, nil
}

// Validate checks constraints the schema cannot express.
func (p *Profile) Validate() error {
	if p.Platform != "" {
		if _, err := semver.NewVersion(p.Platform); err != nil {
			return invalid("").With("platform", p.Platform).Wrapf(err, "invalid platform level")
		}
	}
	seen := make(map[string]bool, len(p.Sensors))
	for i := range p.Sensors {
		s := &p.Sensors[i]
		if seen[s.Name] {
			return invalid(s.Name).Errorf("duplicate sensor name %q", s.Name)
		}
		seen[s.Name] = true
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks one sensor.
func (s *Sensor) Validate() error {
	if !namePattern.MatchString(s.Name) {
		return invalid(s.Name).Errorf("sensor name %q must match %s", s.Name, namePattern)
	}
	switch {
	case s.Driver != "" && (s.ID != 0 || s.Type != ""):
		return invalid(s.Name).Errorf("driver and id/type are mutually exclusive")
	case s.Driver == "":
		if s.ID <= 0 {
			return invalid(s.Name).Errorf("custom sensor needs a positive id")
		}
		t, err := biometric.ParseType(s.Type)
		if err != nil || t == biometric.Any {
			return invalid(s.Name).With("type", s.Type).Errorf("custom sensor needs a concrete type")
		}
	}
	if s.Platform != "" {
		if _, err := semver.NewConstraint(s.Platform); err != nil {
			return invalid(s.Name).With("platform", s.Platform).Wrapf(err, "invalid platform constraint")
		}
	}
	if len(s.Script) > 0 && s.Lua != "" {
		return invalid(s.Name).Errorf("script and lua are mutually exclusive")
	}
	if _, err := parseDuration(s.InitDelay); err != nil {
		return invalid(s.Name).With("init_delay", s.InitDelay).Wrap(err)
	}
	if _, err := parseDuration(s.SkipWindow); err != nil {
		return invalid(s.Name).With("skip_window", s.SkipWindow).Wrap(err)
	}
	if _, err := s.steps(); err != nil {
		return err
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, oops.Errorf("negative duration %s", s)
	}
	return d, nil
}

func flag(v *bool) bool { return v == nil || *v }

// step is a decoded Step.
type step struct {
	after   time.Duration
	event   string
	code    backend.ErrorCode
	help    biometric.HelpReason
	message string
}

func (s *Sensor) steps() ([]step, error) {
	out := make([]step, 0, len(s.Script))
	for i, raw := range s.Script {
		st, err := decodeStep(raw)
		if err != nil {
			return nil, invalid(s.Name).With("step", i).Wrap(err)
		}
		out = append(out, st)
	}
	return out, nil
}

func decodeStep(raw Step) (step, error) {
	after, err := parseDuration(raw.After)
	if err != nil {
		return step{}, err
	}
	st := step{after: after, event: raw.Event, message: raw.Message}
	switch raw.Event {
	case EventSuccess, EventFailed:
	case EventError:
		code, ok := backend.ParseErrorCode(raw.Code)
		if !ok {
			return step{}, oops.With("code", raw.Code).Errorf("unknown error code %q", raw.Code)
		}
		st.code = code
	case EventHelp:
		st.help = biometric.ParseHelpReason(raw.Code)
	default:
		return step{}, oops.With("event", raw.Event).Errorf("unknown event %q", raw.Event)
	}
	return st, nil
}
