package domain

import "context"

// Driver opens sessions against a stateful, ordinal-addressed source.
type Driver interface {
	Open(ctx context.Context, target string) (Session, error)
}

// Session is a single source session. It is not safe for concurrent use.
type Session interface {
	// TriggerReveal asks the source to make more records addressable.
	TriggerReveal(ctx context.Context) error

	// FetchAt returns the record at the given zero-based ordinal. The bool is
	// false when no record is revealed at that position yet.
	FetchAt(ctx context.Context, ordinal int) (Record, bool, error)

	Close() error
}
