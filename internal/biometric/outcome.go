// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package biometric

import "time"

// OutcomeKind tags the variant held by an Outcome.
type OutcomeKind int

// Outcome kinds.
const (
	OutcomeSuccess OutcomeKind = iota + 1
	OutcomeFailure
	OutcomeCanceled
	OutcomeHelp
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeCanceled:
		return "canceled"
	case OutcomeHelp:
		return "help"
	default:
		return "unknown"
	}
}

// CryptoPurpose describes what the caller wants the authentication to
// unlock. The engine passes it through to backends untouched.
type CryptoPurpose struct {
	Name    string
	Encrypt bool
}

// CryptoObject is opaque material a backend returns on success.
type CryptoObject struct {
	Purpose  string
	Material []byte
}

// Outcome is what a backend reports for one authenticate call.
type Outcome struct {
	Kind OutcomeKind

	// Failure fields. A non-fatal failure is informational: the backend keeps
	// trying and the aggregation layer ignores it.
	Reason FailureReason
	Fatal  bool

	// Help fields.
	Help    HelpReason
	Message string

	// Success field.
	Crypto *CryptoObject
}

// Terminal reports whether the outcome ends the backend's participation.
func (o Outcome) Terminal() bool {
	switch o.Kind {
	case OutcomeSuccess, OutcomeCanceled:
		return true
	case OutcomeFailure:
		return o.Fatal
	default:
		return false
	}
}

// Success builds a success outcome.
func Success(crypto *CryptoObject) Outcome {
	return Outcome{Kind: OutcomeSuccess, Crypto: crypto}
}

// Failure builds a failure outcome.
func Failure(reason FailureReason, fatal bool) Outcome {
	return Outcome{Kind: OutcomeFailure, Reason: reason, Fatal: fatal}
}

// Canceled builds a cancellation outcome.
func Canceled() Outcome {
	return Outcome{Kind: OutcomeCanceled}
}

// Help builds a help outcome.
func Help(reason HelpReason, msg string) Outcome {
	return Outcome{Kind: OutcomeHelp, Help: reason, Message: msg}
}

// Event is an outcome tagged with the backend that produced it and the type
// that backend was dispatched for.
type Event struct {
	Type      Type
	BackendID int
	Outcome   Outcome
	At        time.Time
}
