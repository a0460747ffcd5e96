// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/biogate/biogate/internal/biometric"
	"github.com/biogate/biogate/internal/engine"
)

type discoverConfig struct {
	jsonOutput bool
	types      []string
}

// NewDiscoverCmd creates the discover subcommand.
func NewDiscoverCmd() *cobra.Command {
	cfg := &discoverConfig{}

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover biometric backends and list the ready set",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDiscover(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().StringSliceVar(&cfg.types, "type", []string{"any"}, "biometric types to look for")

	return cmd
}

func runDiscover(cmd *cobra.Command, cfg *discoverConfig) error {
	types, err := biometric.ParseTypes(cfg.types)
	if err != nil {
		return err
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.engine.Discover(cmd.Context(), types); err != nil {
		return err
	}

	st := rt.engine.Status()
	if cfg.jsonOutput {
		out, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return oops.Wrapf(err, "format JSON")
		}
		cmd.Println(string(out))
		return nil
	}
	cmd.Print(formatStatusTable(st))
	return nil
}

// formatStatusTable renders the ready set as an aligned table.
func formatStatusTable(st engine.Status) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "platform %s, %d backend(s) ready\n", st.Platform, len(st.Backends))
	if len(st.Backends) == 0 {
		return sb.String()
	}

	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tPRESENT\tENROLLED\tLOCKED")
	for _, b := range st.Backends {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			b.ID, b.Name, b.Type, yesNo(b.Present), yesNo(b.Enrolled), yesNo(b.LockedOut))
	}
	_ = w.Flush()
	return sb.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
