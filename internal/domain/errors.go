package domain

import (
	"errors"
	"fmt"
)

// Kind categorizes harvesting faults.
type Kind string

const (
	KindDriverTimeout   Kind = "driver_timeout"
	KindDriver          Kind = "driver"
	KindExtractionGap   Kind = "extraction_gap"
	KindSinkWrite       Kind = "sink_write"
	KindMalformedRecord Kind = "malformed_record"
)

var (
	ErrDriverTimeout = errors.New("driver timeout")
	ErrSinkWrite     = errors.New("sink write failure")
)

// Error carries a Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the sentinel for the kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrDriverTimeout:
		return e.Kind == KindDriverTimeout
	case ErrSinkWrite:
		return e.Kind == KindSinkWrite
	}
	return false
}

// NewError wraps err with kind and op. It returns nil for a nil err.
func NewError(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether any error in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// IsRetryable returns true for faults the loop may retry locally.
func IsRetryable(err error) bool {
	return IsKind(err, KindDriverTimeout) || IsKind(err, KindSinkWrite)
}
