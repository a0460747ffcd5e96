// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package engine

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/biogate/biogate/internal/biometric"
	"github.com/biogate/biogate/internal/logging"
	"github.com/biogate/biogate/internal/session"
)

// liveSession binds one aggregator to the engine. It receives dispatcher
// events and wraps the caller's listener with metrics, tracing and
// bookkeeping. All methods run on the dispatcher loop.
type liveSession struct {
	engine   *Engine
	id       ulid.ULID
	ctx      context.Context
	span     trace.Span
	cfg      session.Config
	started  time.Time
	agg      *session.Aggregator
	listener session.Listener
}

func (e *Engine) newLiveSession(ctx context.Context, id ulid.ULID, cfg session.Config, listener session.Listener) *liveSession {
	ctx = logging.WithSessionID(ctx, id.String())
	ctx, span := tracer.Start(ctx, "engine.authenticate",
		trace.WithAttributes(
			attribute.String("session.id", id.String()),
			attribute.String("session.policy", cfg.Policy.String()),
			attribute.StringSlice("session.types", typeNames(cfg.Desired())),
		))

	ls := &liveSession{
		engine:   e,
		id:       id,
		ctx:      ctx,
		span:     span,
		cfg:      cfg,
		started:  time.Now(),
		listener: listener,
	}
	ls.agg = session.New(cfg, e.dispatcher, ls, session.WithLogger(e.logger.With("session_id", id.String())))
	e.logger.InfoContext(ctx, "session started", "policy", cfg.Policy.String(), "types", typeNames(cfg.Desired()))
	return ls
}

// OnEvent implements dispatch.Listener.
func (s *liveSession) OnEvent(ev biometric.Event) {
	outcome := ev.Outcome.Kind.String()
	if ev.Outcome.Kind == biometric.OutcomeFailure {
		outcome = ev.Outcome.Reason.String()
	}
	recordEvent(ev.Type.String(), outcome)
	s.span.AddEvent("backend."+ev.Outcome.Kind.String(), trace.WithAttributes(
		attribute.String("type", ev.Type.String()),
		attribute.Int("backend_id", ev.BackendID),
		attribute.Bool("fatal", ev.Outcome.Fatal),
	))
	s.agg.OnEvent(ev)
}

// OnHelp implements session.Listener.
func (s *liveSession) OnHelp(help biometric.HelpReason, msg string) {
	s.listener.OnHelp(help, msg)
}

// OnSucceeded implements session.Listener.
func (s *liveSession) OnSucceeded(results []session.Result) {
	s.end(ResultSucceeded, false)
	s.span.SetStatus(codes.Ok, "")
	s.span.End()
	s.listener.OnSucceeded(results)
}

// OnFailed implements session.Listener.
func (s *liveSession) OnFailed(reason biometric.FailureReason) {
	s.end(ResultFailed, false)
	s.span.SetStatus(codes.Error, reason.String())
	s.span.End()
	s.engine.logger.InfoContext(s.ctx, "session failed", "reason", reason.String())
	s.listener.OnFailed(reason)
}

// OnCanceled implements session.Listener.
func (s *liveSession) OnCanceled() {
	s.end(ResultCanceled, true)
	s.span.End()
	s.listener.OnCanceled()
}

func (s *liveSession) end(result string, canceled bool) {
	d := time.Since(s.started)
	recordSession(s.cfg.Policy.String(), result, d)
	s.engine.logger.InfoContext(s.ctx, "session finished", "result", result, "duration", d)
	s.engine.finished(s, canceled)
}

func typeNames(types []biometric.Type) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, t.String())
	}
	return out
}
