// Package memerr defines the error taxonomy shared by every memory
// component. Components wrap lower-level errors with fmt.Errorf and a
// Kind so callers at the MCP/HTTP boundary can translate a failure into
// the right tool-error or status code without string-matching messages.
package memerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure into one of the policies described for the
// memory engine: fatal at startup, surfaced to the caller, recovered
// locally, or rejected before any side effect.
type Kind string

const (
	// KindModelLoad marks a failure loading the embedding model. Fatal
	// at startup.
	KindModelLoad Kind = "model_load"
	// KindStorage marks a failure from the underlying vector store.
	// Surfaced to the caller; never retried in the core.
	KindStorage Kind = "storage"
	// KindSampling marks a denied, timed out, or malformed sampling
	// reply. Causes the affected merge component to be skipped.
	KindSampling Kind = "sampling"
	// KindInvalidInput marks a parameter error rejected before any
	// side effect.
	KindInvalidInput Kind = "invalid_input"
	// KindRecall marks an internal failure inside the recall
	// endpoint (embedding failure only; everything else degrades to
	// an empty 200 response).
	KindRecall Kind = "recall"
)

// Error is the single error type used across package boundaries in this
// module. It always wraps a cause so %w unwrapping keeps working.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap builds an *Error of the given kind, recording op as the
// component-local operation name (e.g. "store_qa", "upsert_topic").
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is a *Error of the given kind, unwrapping as
// necessary.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
