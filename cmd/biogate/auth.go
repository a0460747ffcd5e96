// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/biogate/biogate/internal/biometric"
	"github.com/biogate/biogate/internal/engine"
	"github.com/biogate/biogate/internal/restart"
	"github.com/biogate/biogate/internal/session"
)

// Error codes for auth outcomes.
const (
	CodeAuthFailed   = "AUTH_FAILED"
	CodeAuthCanceled = "AUTH_CANCELED"
)

type authConfig struct {
	primary   []string
	secondary []string
	purpose   string
	encrypt   bool
}

// NewAuthCmd creates the auth subcommand.
func NewAuthCmd() *cobra.Command {
	cfg := &authConfig{}

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Run one authentication session",
		Long: `Discover backends, then authenticate against the requested biometric
types. Each type is decided by its own backend; --primary only marks which
types the caller considers primary. Interrupting the command cancels the
session.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAuth(cmd, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&cfg.secondary, "type", nil, "biometric types to authenticate (any, fingerprint, face, ...)")
	flags.StringSliceVar(&cfg.primary, "primary", nil, "biometric types to mark as primary")
	flags.StringVar(&cfg.purpose, "purpose", "", "name of the key the authentication unlocks")
	flags.BoolVar(&cfg.encrypt, "encrypt", false, "request an encryption rather than a decryption key")
	flags.String("policy", "any", "confirmation policy (any or all)")
	flags.Bool("degrade-all", true, "let the all policy succeed when at least one type succeeded")
	flags.Int("restart-budget", restart.DefaultBudget, "restarts allowed per session")
	flags.Duration("timeout", 0, "cancel the session after this long (0 waits indefinitely)")

	return cmd
}

// printListener reports session progress on the command's output.
type printListener struct {
	cmd  *cobra.Command
	done chan outcome
}

type outcome struct {
	results  []session.Result
	reason   biometric.FailureReason
	canceled bool
}

func (l *printListener) OnHelp(help biometric.HelpReason, msg string) {
	if msg == "" {
		msg = help.String()
	}
	l.cmd.Printf("hint: %s\n", msg)
}

func (l *printListener) OnSucceeded(results []session.Result) {
	l.done <- outcome{results: results}
}

func (l *printListener) OnFailed(reason biometric.FailureReason) {
	l.done <- outcome{reason: reason}
}

func (l *printListener) OnCanceled() {
	l.done <- outcome{canceled: true}
}

func runAuth(cmd *cobra.Command, cfg *authConfig) error {
	names := cfg.secondary
	if len(names) == 0 && len(cfg.primary) == 0 {
		names = []string{"any"}
	}
	primary, err := biometric.ParseTypes(cfg.primary)
	if err != nil {
		return err
	}
	secondary, err := biometric.ParseTypes(names)
	if err != nil {
		return err
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rt.engine.Discover(ctx, append(primary, secondary...)); err != nil {
		return err
	}

	req := engine.Request{
		Primary:    primary,
		Secondary:  secondary,
		Policy:     rt.cfg.Policy(),
		DegradeAll: rt.cfg.Session.DegradeAll,
		Predicate:  restart.DefaultWithBudget(rt.cfg.Session.RestartBudget),
	}
	if cfg.purpose != "" {
		req.Purpose = &biometric.CryptoPurpose{Name: cfg.purpose, Encrypt: cfg.encrypt}
	}

	l := &printListener{cmd: cmd, done: make(chan outcome, 1)}
	id, err := rt.engine.Authenticate(ctx, req, l)
	if err != nil {
		return err
	}
	rt.logger.Debug("session started", "session_id", id.String(), "policy", req.Policy.String())

	var timeout <-chan time.Time
	if d := rt.cfg.Session.Timeout; d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timeout = t.C
	}

	var res outcome
	select {
	case res = <-l.done:
	case <-ctx.Done():
		rt.engine.Cancel()
		res = <-l.done
	case <-timeout:
		rt.logger.Info("session timed out", "session_id", id.String(), "timeout", rt.cfg.Session.Timeout)
		rt.engine.Cancel()
		res = <-l.done
	}

	return reportOutcome(cmd, id.String(), res)
}

func reportOutcome(cmd *cobra.Command, id string, res outcome) error {
	switch {
	case res.canceled:
		cmd.Println("canceled")
		return oops.Code(CodeAuthCanceled).With("session_id", id).Errorf("authentication canceled")
	case len(res.results) > 0:
		types := make([]string, 0, len(res.results))
		for _, r := range res.results {
			types = append(types, r.Type.String())
		}
		cmd.Printf("authenticated: %s\n", strings.Join(types, ", "))
		return nil
	default:
		cmd.Printf("failed: %s\n", res.reason)
		return oops.Code(CodeAuthFailed).
			With("session_id", id).
			With("reason", res.reason.String()).
			Errorf("authentication failed: %s", res.reason)
	}
}

var _ session.Listener = (*printListener)(nil)

