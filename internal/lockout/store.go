// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

// Package lockout persists permanent sensor lockout flags keyed by biometric
// type.
package lockout

import (
	"context"

	"github.com/samber/oops"

	"github.com/biogate/biogate/internal/biometric"
)

// KeyPrefix prefixes every persisted flag.
const KeyPrefix = "user_unlock_device"

// Store persists "permanently locked" flags. Flags must survive process
// restarts and are cleared only by Reset.
type Store interface {
	SetPermanentlyLocked(ctx context.Context, t biometric.Type) error
	IsPermanentlyLocked(ctx context.Context, t biometric.Type) (bool, error)
	Reset(ctx context.Context) error
	Close() error
}

// Key returns the persisted key for t, e.g. "user_unlock_device-BIOMETRIC_FACE".
func Key(t biometric.Type) string {
	return KeyPrefix + "-" + t.Key()
}

// Locked returns the concrete types flagged in s.
func Locked(ctx context.Context, s Store) ([]biometric.Type, error) {
	var locked []biometric.Type
	for _, t := range biometric.Types() {
		ok, err := s.IsPermanentlyLocked(ctx, t)
		if err != nil {
			return nil, err
		}
		if ok {
			locked = append(locked, t)
		}
	}
	return locked, nil
}

func storeError(driver, op string, err error) error {
	return oops.Code(biometric.CodeLockoutStoreFailed).
		With("driver", driver).
		With("operation", op).
		Wrap(err)
}
