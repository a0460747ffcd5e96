// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package biometric

import "fmt"

// Descriptor is the static identity of one backend implementation.
// When several backends service the same Type, the lowest ID wins.
type Descriptor struct {
	ID   int
	Name string
	Type Type
	// Platform is a semver constraint over the platform capability level,
	// e.g. ">= 6.0, < 7.0". Empty admits every level.
	Platform string
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s(%d/%s)", d.Name, d.ID, d.Type)
}

// Less orders descriptors by priority.
func (d Descriptor) Less(other Descriptor) bool {
	return d.ID < other.ID
}
