package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/qepting91/review-harvester/internal/domain"
)

// MultiSink fans each batch out to several sinks in order. A retried flush
// reaches sinks that already accepted the batch again, which merge-mode sinks
// absorb and append-mode sinks leave to Repair.
type MultiSink struct {
	sinks []domain.Sink
}

func NewMultiSink(sinks ...domain.Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Flush(ctx context.Context, batch []domain.Record) error {
	for i, s := range m.sinks {
		if err := s.Flush(ctx, batch); err != nil {
			return fmt.Errorf("sink %d (%s): %w", i, s.Mode(), err)
		}
	}
	return nil
}

// Mode is append if any member appends.
func (m *MultiSink) Mode() domain.Mode {
	for _, s := range m.sinks {
		if s.Mode() == domain.ModeAppend {
			return domain.ModeAppend
		}
	}
	return domain.ModeMerge
}

func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// Load reads from the first member that can load.
func (m *MultiSink) Load(ctx context.Context) ([]domain.Record, error) {
	for _, s := range m.sinks {
		if l, ok := s.(domain.Loader); ok {
			return l.Load(ctx)
		}
	}
	return nil, nil
}

// Repair runs every member's repair pass and sums the results.
func (m *MultiSink) Repair(ctx context.Context) (domain.RepairStats, error) {
	var total domain.RepairStats
	for _, s := range m.sinks {
		r, ok := s.(domain.Repairer)
		if !ok {
			continue
		}
		stats, err := r.Repair(ctx)
		if err != nil {
			return total, err
		}
		total.Read += stats.Read
		total.Kept += stats.Kept
		total.Removed += stats.Removed
	}
	return total, nil
}
