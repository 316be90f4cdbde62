// Package verr defines the structured error taxonomy shared by the verifier packages.
//
// Callers should branch on Kind/RuleID rather than matching error strings.
// Error() strings are human-readable and may evolve; use errors.As to extract
// *Error for structured handling.
package verr

import "errors"

// Kind is a stable category for programmatic error handling.
type Kind string

const (
	// KindCanonical marks values the canonical encoder cannot represent
	// (non-finite numbers, cycles, unencodable Go values, duplicate keys).
	KindCanonical Kind = "Canonical"
	// KindEncoding marks malformed base64url input.
	KindEncoding Kind = "Encoding"
	// KindKey marks key-selection failures.
	KindKey Kind = "Key"
	// KindCID marks malformed content identifiers.
	KindCID Kind = "CID"
	// KindContract marks caller contract violations, e.g. an empty chain
	// handed to the bundle verifier.
	KindContract Kind = "Contract"
	// KindStorage marks document store failures.
	KindStorage Kind = "Storage"
	KindInternal Kind = "Internal"
)

// Error is the structured error type.
//
// RuleID is a stable identifier (e.g. SIG-CANON-001, SIG-B64U-002) naming the
// violated rule. Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	RuleID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// New returns a structured error without a cause.
func New(kind Kind, ruleID, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
}

// Wrap returns a structured error carrying cause. A nil cause behaves like New.
func Wrap(kind Kind, ruleID, msg string, cause error) error {
	if cause == nil {
		return New(kind, ruleID, msg)
	}
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}
