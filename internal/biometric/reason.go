// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package biometric

// FailureReason is the normalized failure vocabulary every backend maps its
// vendor codes into.
type FailureReason int

// Failure reasons.
const (
	ReasonUnknown FailureReason = iota
	ReasonNoHardware
	ReasonHardwareUnavailable
	ReasonNoBiometricsRegistered
	ReasonSensorFailed
	ReasonAuthenticationFailed
	ReasonTimeout
	ReasonLockedOut
	ReasonPermanentlyLocked
	ReasonInternalError
)

var reasonNames = [...]string{
	ReasonUnknown:                "unknown",
	ReasonNoHardware:             "no_hardware",
	ReasonHardwareUnavailable:    "hardware_unavailable",
	ReasonNoBiometricsRegistered: "no_biometrics_registered",
	ReasonSensorFailed:           "sensor_failed",
	ReasonAuthenticationFailed:   "authentication_failed",
	ReasonTimeout:                "timeout",
	ReasonLockedOut:              "locked_out",
	ReasonPermanentlyLocked:      "permanently_locked",
	ReasonInternalError:          "internal_error",
}

func (r FailureReason) String() string {
	if r < 0 || int(r) >= len(reasonNames) {
		return "unknown"
	}
	return reasonNames[r]
}

// Transient reports whether the reason may clear up on its own and is
// eligible for a local restart.
func (r FailureReason) Transient() bool {
	switch r {
	case ReasonHardwareUnavailable, ReasonSensorFailed, ReasonAuthenticationFailed, ReasonTimeout:
		return true
	default:
		return false
	}
}

// CountsTowardLockout reports whether repeated occurrences escalate to a
// temporary lockout once the restart predicate declines.
func (r FailureReason) CountsTowardLockout() bool {
	return r == ReasonSensorFailed || r == ReasonAuthenticationFailed
}

// Locked reports whether the reason is one of the lockout kinds.
func (r FailureReason) Locked() bool {
	return r == ReasonLockedOut || r == ReasonPermanentlyLocked
}

// HelpReason classifies acquisition hints a sensor emits while scanning.
type HelpReason int

// Help reasons.
const (
	HelpUnknown HelpReason = iota
	HelpGood
	HelpPartial
	HelpInsufficient
	HelpImagerDirty
	HelpTooSlow
	HelpTooFast
	HelpVendor
)

var helpNames = [...]string{
	HelpUnknown:      "unknown",
	HelpGood:         "good",
	HelpPartial:      "partial",
	HelpInsufficient: "insufficient",
	HelpImagerDirty:  "imager_dirty",
	HelpTooSlow:      "too_slow",
	HelpTooFast:      "too_fast",
	HelpVendor:       "vendor",
}

func (h HelpReason) String() string {
	if h < 0 || int(h) >= len(helpNames) {
		return "unknown"
	}
	return helpNames[h]
}

// ParseHelpReason maps a help name back to its reason. Unknown names map to
// HelpUnknown.
func ParseHelpReason(s string) HelpReason {
	for i, n := range helpNames {
		if n == s {
			return HelpReason(i)
		}
	}
	return HelpUnknown
}
