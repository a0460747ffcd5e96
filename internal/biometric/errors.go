// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package biometric

import (
	"github.com/samber/oops"
)

// Error codes shared across the engine.
const (
	CodeBackendNotReady     = "BACKEND_NOT_READY"
	CodeDuplicateDescriptor = "DUPLICATE_DESCRIPTOR"
	CodeDiscoveryInProgress = "DISCOVERY_IN_PROGRESS"
	CodeSessionInProgress   = "SESSION_IN_PROGRESS"
	CodeNoBackends          = "NO_BACKENDS"
	CodeUnknownType         = "UNKNOWN_TYPE"
	CodeLockoutStoreFailed  = "LOCKOUT_STORE_FAILED"
	CodeInvalidProfile      = "INVALID_PROFILE"
	CodeInvalidConfig       = "INVALID_CONFIG"
	CodeStoreNotMigrated    = "STORE_NOT_MIGRATED"
	CodeBackendPanic        = "BACKEND_PANIC"
	CodeEngineClosed        = "ENGINE_CLOSED"
	CodeLockedOut           = "LOCKED_OUT"
	CodePermanentlyLocked   = "PERMANENTLY_LOCKED"
)

// ErrBackendNotReady creates an error for a backend whose start
// preconditions do not hold.
func ErrBackendNotReady(d Descriptor, present, enrolled, locked bool) error {
	return oops.Code(CodeBackendNotReady).
		With("backend", d.Name).
		With("backend_id", d.ID).
		With("hardware_present", present).
		With("enrolled", enrolled).
		With("locked_out", locked).
		Errorf("backend %s not ready", d.Name)
}

// ErrDuplicateDescriptor creates an error for a descriptor id registered twice.
func ErrDuplicateDescriptor(d Descriptor) error {
	return oops.Code(CodeDuplicateDescriptor).
		With("backend", d.Name).
		With("backend_id", d.ID).
		Errorf("descriptor id %d already registered", d.ID)
}

// ErrDiscoveryInProgress creates an error for a rejected reentrant discovery.
func ErrDiscoveryInProgress() error {
	return oops.Code(CodeDiscoveryInProgress).Errorf("discovery already running")
}

// ErrSessionInProgress creates an error for a second concurrent session.
func ErrSessionInProgress() error {
	return oops.Code(CodeSessionInProgress).Errorf("authentication session already in progress")
}

// ErrEngineClosed creates an error for requests made after shutdown.
func ErrEngineClosed() error {
	return oops.Code(CodeEngineClosed).Errorf("engine closed")
}

// ErrNoBackends creates an error when no usable backend services a request.
func ErrNoBackends(types []Type) error {
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, t.String())
	}
	return oops.Code(CodeNoBackends).
		With("types", names).
		Errorf("no usable backend for requested types")
}

// ErrLockedOut creates an error when every backend of a request is usable
// except for its lockout. permanent selects the persisted kind.
func ErrLockedOut(types []Type, permanent bool) error {
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, t.String())
	}
	code := CodeLockedOut
	if permanent {
		code = CodePermanentlyLocked
	}
	return oops.Code(code).
		With("types", names).
		Errorf("every requested backend is locked out")
}

// ErrUnknownType creates an error for an out-of-range type value.
func ErrUnknownType(v int) error {
	return oops.Code(CodeUnknownType).
		With("type", v).
		Errorf("unknown biometric type %d", v)
}

// ReasonOf maps an engine error to the failure reason reported to callers.
func ReasonOf(err error) FailureReason {
	if err == nil {
		return ReasonUnknown
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ReasonInternalError
	}
	switch oopsErr.Code() {
	case CodeNoBackends:
		return ReasonNoBiometricsRegistered
	case CodeLockedOut:
		return ReasonLockedOut
	case CodePermanentlyLocked:
		return ReasonPermanentlyLocked
	default:
		return ReasonInternalError
	}
}
