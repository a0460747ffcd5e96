// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/biogate/biogate/internal/simulator"
)

// NewSchemaCmd creates the schema subcommand.
func NewSchemaCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for device profiles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := simulator.GenerateSchema()
			if err != nil {
				return err
			}
			if output == "" {
				cmd.Println(string(data))
				return nil
			}
			if err := os.WriteFile(output, append(data, '\n'), 0o600); err != nil {
				return oops.With("path", output).Wrapf(err, "write schema")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the schema to a file")
	return cmd
}
