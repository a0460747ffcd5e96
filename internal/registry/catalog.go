// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package registry

import (
	"slices"

	"github.com/biogate/biogate/internal/biometric"
)

// Catalog lists every backend the engine knows how to drive, with the
// platform levels on which it exists. A catalog entry only becomes a
// discovery candidate once a driver is bound to its name.
var Catalog = []biometric.Descriptor{
	{ID: 10, Name: "fingerprint-api23", Type: biometric.Fingerprint, Platform: ">= 23"},
	{ID: 11, Name: "fingerprint-support", Type: biometric.Fingerprint, Platform: ">= 23"},
	{ID: 12, Name: "fingerprint-soter", Type: biometric.Fingerprint, Platform: ">= 23"},
	{ID: 13, Name: "fingerprint-samsung", Type: biometric.Fingerprint, Platform: ">= 19, <= 23"},
	{ID: 14, Name: "fingerprint-flyme", Type: biometric.Fingerprint, Platform: ">= 21, <= 22"},

	{ID: 20, Name: "face-platform", Type: biometric.Face, Platform: ">= 28"},
	{ID: 21, Name: "face-huawei3d", Type: biometric.Face, Platform: ">= 29"},
	{ID: 22, Name: "face-hihonor3d", Type: biometric.Face, Platform: ">= 29"},
	{ID: 23, Name: "face-huawei", Type: biometric.Face, Platform: ">= 26"},
	{ID: 24, Name: "face-hihonor", Type: biometric.Face, Platform: ">= 26"},
	{ID: 25, Name: "face-samsung", Type: biometric.Face, Platform: ">= 24"},
	{ID: 26, Name: "face-miui", Type: biometric.Face, Platform: ">= 24"},
	{ID: 27, Name: "face-soter", Type: biometric.Face, Platform: ">= 24"},
	{ID: 28, Name: "face-legacy-facelock", Type: biometric.Face},

	{ID: 30, Name: "iris-platform", Type: biometric.Iris, Platform: ">= 28"},
	{ID: 31, Name: "iris-samsung", Type: biometric.Iris, Platform: ">= 24"},
}

// lookupCatalog finds a catalog entry by name or id.
func lookupCatalog(catalog []biometric.Descriptor, match func(biometric.Descriptor) bool) (biometric.Descriptor, bool) {
	i := slices.IndexFunc(catalog, match)
	if i < 0 {
		return biometric.Descriptor{}, false
	}
	return catalog[i], true
}
