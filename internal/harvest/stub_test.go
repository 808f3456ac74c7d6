package harvest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/qepting91/review-harvester/internal/domain"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fetchCall struct {
	ordinal int
	found   bool
}

// stubSource is a zero-dependency driver and session over a fixed record
// list. Each reveal exposes step more records.
type stubSource struct {
	records  []domain.Record
	revealed int
	step     int

	opens    int
	openErrs []error
	reveals  int
	// revealErr is consulted with the 1-based reveal count.
	revealErr func(n int) error
	fetchErr  func(ordinal int) error
	fetched   []fetchCall
	closed    bool
}

func (s *stubSource) Open(ctx context.Context, target string) (domain.Session, error) {
	s.opens++
	if len(s.openErrs) > 0 {
		err := s.openErrs[0]
		s.openErrs = s.openErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *stubSource) TriggerReveal(ctx context.Context) error {
	s.reveals++
	if s.revealErr != nil {
		if err := s.revealErr(s.reveals); err != nil {
			return err
		}
	}
	s.revealed = min(len(s.records), s.revealed+s.step)
	return nil
}

func (s *stubSource) FetchAt(ctx context.Context, ordinal int) (domain.Record, bool, error) {
	if s.fetchErr != nil {
		if err := s.fetchErr(ordinal); err != nil {
			return domain.Record{}, false, err
		}
	}
	found := ordinal < s.revealed
	s.fetched = append(s.fetched, fetchCall{ordinal: ordinal, found: found})
	if !found {
		return domain.Record{}, false, nil
	}
	return s.records[ordinal], true, nil
}

func (s *stubSource) Close() error {
	s.closed = true
	return nil
}

// recordingSink keeps a copy of every batch. The first failures calls fail.
type recordingSink struct {
	batches  [][]domain.Record
	calls    int
	failures int
}

func (s *recordingSink) Flush(ctx context.Context, batch []domain.Record) error {
	s.calls++
	if s.calls <= s.failures {
		return errors.New("disk full")
	}
	s.batches = append(s.batches, append([]domain.Record(nil), batch...))
	return nil
}

func (s *recordingSink) Mode() domain.Mode { return domain.ModeAppend }

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) total() int {
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func (s *recordingSink) sizes() []int {
	var out []int
	for _, b := range s.batches {
		out = append(out, len(b))
	}
	return out
}

type loaderSink struct {
	recordingSink
	existing []domain.Record
}

func (s *loaderSink) Load(ctx context.Context) ([]domain.Record, error) {
	return s.existing, nil
}

func makeRecords(n int) []domain.Record {
	out := make([]domain.Record, n)
	for i := range out {
		out[i] = domain.Record{
			ID:     fmt.Sprintf("r-%04d", i),
			Author: fmt.Sprintf("user %d", i),
			Text:   fmt.Sprintf("review body %d", i),
			Rating: i%5 + 1,
			Date:   "2024-03-03T00:00:00Z",
		}
	}
	return out
}

func testOptions(target int) Options {
	opts := DefaultOptions(target)
	opts.SettleInterval = 0
	opts.FlushBackoff = 0
	return opts
}
