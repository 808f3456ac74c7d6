package domain

import "context"

// Mode is the durability strategy a sink implements.
type Mode string

const (
	// ModeAppend writes each batch to the end of a growing log. Duplicates
	// across independent runs are removed by a terminal Repair pass.
	ModeAppend Mode = "append"
	// ModeMerge reads the destination, merges records with unseen
	// identities, and atomically replaces it.
	ModeMerge Mode = "read-merge-write"
)

// Sink durably stores batches of accepted records. A failed Flush must leave
// previously stored records intact.
type Sink interface {
	Flush(ctx context.Context, batch []Record) error
	Mode() Mode
	Close() error
}

// Loader is implemented by sinks that can read back what they stored.
type Loader interface {
	Load(ctx context.Context) ([]Record, error)
}

// RepairStats summarizes a dedup pass.
type RepairStats struct {
	Read    int
	Kept    int
	Removed int
}

// Repairer is implemented by append-mode sinks.
type Repairer interface {
	Repair(ctx context.Context) (RepairStats, error)
}
