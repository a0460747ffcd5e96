// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package session

import (
	"strings"

	"github.com/samber/oops"

	"github.com/biogate/biogate/internal/biometric"
)

// Policy is the confirmation policy combining per-type outcomes.
type Policy int

// Policies.
const (
	// PolicyAny finishes as soon as one desired type succeeds.
	PolicyAny Policy = iota + 1
	// PolicyAll finishes once every desired type reached a terminal outcome.
	PolicyAll
)

func (p Policy) String() string {
	switch p {
	case PolicyAny:
		return "any"
	case PolicyAll:
		return "all"
	default:
		return "unknown"
	}
}

// ParsePolicy parses "any" or "all", case-insensitively.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "any":
		return PolicyAny, nil
	case "all":
		return PolicyAll, nil
	default:
		return 0, oops.Code(biometric.CodeInvalidConfig).
			With("policy", s).
			Errorf("unknown confirmation policy %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	if p != PolicyAny && p != PolicyAll {
		return nil, oops.Code(biometric.CodeInvalidConfig).Errorf("unknown confirmation policy %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(text []byte) error {
	parsed, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
