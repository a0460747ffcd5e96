// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

// Package migrations embeds the lockout store schemas in golang-migrate
// layout (NNNNNN_name.up.sql / .down.sql).
package migrations

import "embed"

// SQLite contains the SQLite migrations under sqlite/.
//
//go:embed sqlite/*.sql
var SQLite embed.FS

// Postgres contains the PostgreSQL migrations under postgres/.
//
//go:embed postgres/*.sql
var Postgres embed.FS
