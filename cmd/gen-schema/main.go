// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

// Command gen-schema writes the device profile JSON Schema to schemas/.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/biogate/biogate/internal/simulator"
)

//go:generate go run . -out ../../schemas/profile.schema.json

func main() {
	outPath := filepath.Join("schemas", "profile.schema.json")
	if len(os.Args) == 3 && os.Args[1] == "-out" {
		outPath = os.Args[2]
	}

	schema, err := simulator.GenerateSchema()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schema: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, append(schema, '\n'), 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %s\n", outPath)
}
