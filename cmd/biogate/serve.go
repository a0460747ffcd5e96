// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/biogate/biogate/internal/biometric"
	"github.com/biogate/biogate/internal/engine"
	"github.com/biogate/biogate/internal/observability"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Discover backends and serve metrics, health and status",
		Long: `Run discovery and keep the engine alive, exposing Prometheus metrics,
liveness and readiness checks and a JSON status snapshot over HTTP.
Readiness turns green once discovery completed.`,
		RunE: runServe,
	}

	cmd.Flags().String("metrics-addr", "127.0.0.1:9100", "observability listen address")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.cfg.Metrics.Addr == "" {
		return oops.Code(biometric.CodeInvalidConfig).Errorf("serve needs a metrics address")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	srv := observability.NewServer(rt.cfg.Metrics.Addr, rt.reg.Ready,
		observability.WithStatus(func() any { return rt.engine.Status() }),
		observability.WithCollectors(engine.RegisterMetrics),
	)
	errCh, err := srv.Start()
	if err != nil {
		return oops.With("operation", "start observability server").Wrap(err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stopCancel()
		if err := srv.Stop(stopCtx); err != nil {
			slog.Warn("failed to stop observability server", "error", err)
		}
	}()
	go monitorServerErrors(ctx, cancel, errCh, "observability")

	go func() {
		if err := rt.engine.Discover(ctx, []biometric.Type{biometric.Any}); err != nil {
			slog.Error("discovery failed", "error", err)
			return
		}
		slog.Info("discovery complete", "backends", len(rt.reg.Backends()))
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("shutting down")
	}
	return nil
}

// monitorServerErrors cancels ctx when the server reports an error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			slog.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
