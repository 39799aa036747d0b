// Package errs defines the engine's typed error model: every failure that
// crosses a pipeline-stage boundary carries a stage, a kind, and its cause.
package errs

import (
	cr "github.com/cockroachdb/errors"

	"orderbridge/internal/model"
)

// Kind classifies a failure for retry and reporting decisions.
type Kind string

const (
	KindAuthentication        Kind = "authentication"
	KindRateLimit             Kind = "rate_limit"
	KindNetwork               Kind = "network"
	KindMalformedInput        Kind = "malformed_input"
	KindInsufficientInventory Kind = "insufficient_inventory"
	KindProviderRejected      Kind = "provider_rejected"
	KindUnknown               Kind = "unknown"
)

// Error is the engine error. OrderID may be empty for calls not tied to a
// single order (inventory queries, listing).
type Error struct {
	Stage   model.Stage
	Kind    Kind
	OrderID string
	Msg     string
	cause   error
}

func (e *Error) Error() string {
	s := string(e.Stage) + "/" + string(e.Kind) + ": " + e.Msg
	if e.OrderID != "" {
		s = "order " + e.OrderID + ": " + s
	}
	if e.cause != nil {
		s += ": " + e.cause.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a typed error with no underlying cause.
func New(stage model.Stage, kind Kind, msg string) *Error {
	return &Error{Stage: stage, Kind: kind, Msg: msg}
}

// Wrap attaches stage/kind classification to an underlying error. A nil cause
// yields nil so call sites can wrap unconditionally.
func Wrap(cause error, stage model.Stage, kind Kind, msg string) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Stage: stage, Kind: kind, Msg: msg, cause: cr.WithStack(cause)}
}

// WithOrder returns a copy bound to an order id.
func (e *Error) WithOrder(orderID string) *Error {
	if e == nil {
		return nil
	}
	c := *e
	c.OrderID = orderID
	return &c
}

// Retryable reports whether the adapters may transparently retry. Only
// transient transport-level failures qualify; everything else needs new
// information before a retry is meaningful.
func Retryable(err error) bool {
	var e *Error
	if !cr.As(err, &e) {
		return false
	}
	return e.Kind == KindNetwork || e.Kind == KindRateLimit
}

// KindOf extracts the kind, defaulting to unknown for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if cr.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// StageOf extracts the stage, empty for untyped errors.
func StageOf(err error) model.Stage {
	var e *Error
	if cr.As(err, &e) {
		return e.Stage
	}
	return ""
}

// AsEngine converts any error into a typed engine error, classifying unknown
// ones so no untyped error ever escapes a stage boundary.
func AsEngine(err error, stage model.Stage) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if cr.As(err, &e) {
		return e
	}
	return &Error{Stage: stage, Kind: KindUnknown, Msg: err.Error(), cause: err}
}

// FieldError is a validator-level error bound to a single input field.
type FieldError struct {
	Field string `json:"field"`
	Code  string `json:"code"`
	Msg   string `json:"message"`
}

func (f FieldError) Error() string { return f.Field + " (" + f.Code + "): " + f.Msg }
