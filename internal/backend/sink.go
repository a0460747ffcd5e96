// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package backend

import "github.com/biogate/biogate/internal/biometric"

// Sink receives the outcomes of authenticate calls, tagged with the priority
// id of the backend that produced them. Implementations must not block.
type Sink interface {
	OnSuccess(id int, crypto *biometric.CryptoObject)
	OnFailure(id int, reason biometric.FailureReason, fatal bool)
	OnHelp(id int, help biometric.HelpReason, msg string)
	OnCanceled(id int)
}

// SinkFuncs is a Sink built from optional functions. Nil fields drop the
// corresponding event.
type SinkFuncs struct {
	Success  func(id int, crypto *biometric.CryptoObject)
	Failure  func(id int, reason biometric.FailureReason, fatal bool)
	Help     func(id int, help biometric.HelpReason, msg string)
	Canceled func(id int)
}

var _ Sink = SinkFuncs{}

// OnSuccess implements Sink.
func (s SinkFuncs) OnSuccess(id int, crypto *biometric.CryptoObject) {
	if s.Success != nil {
		s.Success(id, crypto)
	}
}

// OnFailure implements Sink.
func (s SinkFuncs) OnFailure(id int, reason biometric.FailureReason, fatal bool) {
	if s.Failure != nil {
		s.Failure(id, reason, fatal)
	}
}

// OnHelp implements Sink.
func (s SinkFuncs) OnHelp(id int, help biometric.HelpReason, msg string) {
	if s.Help != nil {
		s.Help(id, help, msg)
	}
}

// OnCanceled implements Sink.
func (s SinkFuncs) OnCanceled(id int) {
	if s.Canceled != nil {
		s.Canceled(id)
	}
}
