// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package backend

import "github.com/biogate/biogate/internal/biometric"

// ErrorCode is the platform error vocabulary drivers translate vendor codes
// into before handing them to a Callback.
type ErrorCode int

// Error codes.
const (
	CodeHwUnavailable ErrorCode = iota + 1
	CodeUnableToProcess
	CodeTimeout
	CodeNoSpace
	CodeCanceled
	CodeLockout
	CodeVendor
	CodeLockoutPermanent
	CodeUserCanceled
	CodeNoBiometrics
	CodeHwNotPresent
	CodeNegativeButton
	CodeNoDeviceCredential
)

var codeNames = map[ErrorCode]string{
	CodeHwUnavailable:      "hw_unavailable",
	CodeUnableToProcess:    "unable_to_process",
	CodeTimeout:            "timeout",
	CodeNoSpace:            "no_space",
	CodeCanceled:           "canceled",
	CodeLockout:            "lockout",
	CodeVendor:             "vendor",
	CodeLockoutPermanent:   "lockout_permanent",
	CodeUserCanceled:       "user_canceled",
	CodeNoBiometrics:       "no_biometrics",
	CodeHwNotPresent:       "hw_not_present",
	CodeNegativeButton:     "negative_button",
	CodeNoDeviceCredential: "no_device_credential",
}

func (c ErrorCode) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "unknown"
}

// ParseErrorCode maps a code name back to its value.
func ParseErrorCode(s string) (ErrorCode, bool) {
	for c, n := range codeNames {
		if n == s {
			return c, true
		}
	}
	return 0, false
}

// Reason maps a code to the failure reason it represents. Cancellation codes
// and unrecognised vendor codes map to ReasonUnknown.
func (c ErrorCode) Reason() biometric.FailureReason {
	switch c {
	case CodeNoBiometrics, CodeNoDeviceCredential:
		return biometric.ReasonNoBiometricsRegistered
	case CodeHwNotPresent:
		return biometric.ReasonNoHardware
	case CodeHwUnavailable, CodeUnableToProcess:
		return biometric.ReasonHardwareUnavailable
	case CodeNoSpace:
		return biometric.ReasonSensorFailed
	case CodeTimeout:
		return biometric.ReasonTimeout
	case CodeLockout:
		return biometric.ReasonLockedOut
	case CodeLockoutPermanent:
		return biometric.ReasonPermanentlyLocked
	default:
		return biometric.ReasonUnknown
	}
}

// userCancel reports whether the code means the user backed out.
func (c ErrorCode) userCancel() bool {
	return c == CodeUserCanceled || c == CodeNegativeButton
}
