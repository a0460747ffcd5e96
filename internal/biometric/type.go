// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

// Package biometric defines the shared vocabulary of the authentication
// engine: biometric types, backend descriptors, failure reasons and the
// outcomes backends report.
package biometric

import (
	"strings"

	"github.com/samber/oops"
)

// Type identifies what is being authenticated, independent of which
// backend services it.
type Type int

// Biometric types.
const (
	Fingerprint Type = iota + 1
	Face
	Iris
	Voice
	Palm
	HeartRate
	Any
)

var typeNames = map[Type]string{
	Fingerprint: "fingerprint",
	Face:        "face",
	Iris:        "iris",
	Voice:       "voice",
	Palm:        "palm",
	HeartRate:   "heart-rate",
	Any:         "any",
}

// Types returns every concrete type (Any excluded) in declaration order.
func Types() []Type {
	return []Type{Fingerprint, Face, Iris, Voice, Palm, HeartRate}
}

// String returns the config form of the type, e.g. "fingerprint".
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Key returns the stable persisted form of the type, e.g.
// "BIOMETRIC_FINGERPRINT". Lockout flags are keyed by it.
func (t Type) Key() string {
	return "BIOMETRIC_" + strings.ToUpper(strings.ReplaceAll(t.String(), "-", ""))
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, ErrUnknownType(int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseType parses the config form ("face") or the persisted form
// ("BIOMETRIC_FACE") of a type.
func ParseType(s string) (Type, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.TrimPrefix(name, "biometric_")
	if name == "heartrate" {
		name = "heart-rate"
	}
	for t, n := range typeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, oops.Code(CodeUnknownType).
		With("type", s).
		Errorf("unknown biometric type %q", s)
}

// ParseTypes parses a list of type names. Any expands to every concrete type.
func ParseTypes(names []string) ([]Type, error) {
	seen := make(map[Type]bool, len(names))
	out := make([]Type, 0, len(names))
	for _, n := range names {
		t, err := ParseType(n)
		if err != nil {
			return nil, err
		}
		expanded := []Type{t}
		if t == Any {
			expanded = Types()
		}
		for _, e := range expanded {
			if !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	return out, nil
}
