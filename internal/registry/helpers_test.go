// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package registry

import "github.com/biogate/biogate/pkg/errutil"

func codeOf(err error) string { return errutil.Code(err) }
