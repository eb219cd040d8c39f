package core

import (
	"errors"
	"fmt"
)

// FailureKind classifies text-completion and other dependency failures.
type FailureKind string

const (
	FailureTimeout              FailureKind = "timeout"
	FailureRateLimited          FailureKind = "rate_limited"
	FailureInvalidResponseShape FailureKind = "invalid_response_shape"
	FailureServiceUnavailable   FailureKind = "service_unavailable"
)

// TransientError is a dependency failure worth retrying with backoff.
type TransientError struct {
	Kind FailureKind
	Err  error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient dependency failure (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("transient dependency failure (%s)", e.Kind)
}

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err with a failure kind.
func NewTransientError(kind FailureKind, err error) *TransientError {
	return &TransientError{Kind: kind, Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// GroundingError means model output could not be traced back to the
// provided source data.
type GroundingError struct {
	Stage  string
	Detail string
}

func (e *GroundingError) Error() string {
	return fmt.Sprintf("grounding failure in %s: %s", e.Stage, e.Detail)
}

// IsGrounding reports whether err is (or wraps) a GroundingError.
func IsGrounding(err error) bool {
	var ge *GroundingError
	return errors.As(err, &ge)
}

// ConfigError means a community is missing configuration required by the
// requested operation. It is surfaced to the requesting admin, not retried.
type ConfigError struct {
	CommunityID string
	Missing     string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("community %s is missing configuration: %s", e.CommunityID, e.Missing)
}

var (
	// ErrDuplicateDispatch is a no-op outcome: the due-check found an
	// existing dispatch record for today. Not an error condition.
	ErrDuplicateDispatch = errors.New("dispatch record already exists for today")

	// ErrInsufficientContent means the message window had too little usable
	// content to generate anything. The run short-circuits with no dispatch.
	ErrInsufficientContent = errors.New("insufficient content in window")
)
