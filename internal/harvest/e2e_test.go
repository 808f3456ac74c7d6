package harvest_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/qepting91/review-harvester/internal/collector"
	"github.com/qepting91/review-harvester/internal/domain"
	"github.com/qepting91/review-harvester/internal/harvest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	batches [][]domain.Record
}

func (s *memorySink) Flush(_ context.Context, batch []domain.Record) error {
	s.batches = append(s.batches, append([]domain.Record(nil), batch...))
	return nil
}

func (s *memorySink) Mode() domain.Mode { return domain.ModeAppend }
func (s *memorySink) Close() error      { return nil }

func TestHarvestMockSourceEndToEnd(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	driver := collector.NewMockDriver(collector.MockConfig{
		Total:          450,
		Initial:        40,
		Step:           40,
		DuplicateEvery: 0,
		Seed:           42,
	}, logger)
	sink := &memorySink{}

	opts := harvest.DefaultOptions(450)
	opts.SettleInterval = time.Millisecond

	res := harvest.New(driver, sink, opts, logger).Run(context.Background(), "demo")

	require.True(t, res.OK(), "phase %s: %v", res.Phase, res.Err)
	require.Len(t, sink.batches, 3)
	assert.Len(t, sink.batches[0], 200)
	assert.Len(t, sink.batches[1], 200)
	assert.Len(t, sink.batches[2], 50)

	ids := make(map[string]bool)
	for _, batch := range sink.batches {
		for _, r := range batch {
			assert.False(t, ids[r.ID], "duplicate %s", r.ID)
			ids[r.ID] = true
			assert.GreaterOrEqual(t, r.Rating, domain.MinRating)
			assert.LessOrEqual(t, r.Rating, domain.MaxRating)
			_, err := time.Parse(time.RFC3339, r.Date)
			assert.NoError(t, err)
		}
	}
	assert.Len(t, ids, 450)
}

func TestHarvestMockSourceWithRepeats(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	driver := collector.NewMockDriver(collector.MockConfig{
		Total:          100,
		Initial:        30,
		Step:           30,
		DuplicateEvery: 5,
		Seed:           3,
	}, logger)
	sink := &memorySink{}

	opts := harvest.DefaultOptions(1000)
	opts.SettleInterval = 0

	res := harvest.New(driver, sink, opts, logger).Run(context.Background(), "demo")

	require.Equal(t, harvest.Done, res.Phase, res.Err)
	// Ordinals 5, 10, ... 95 repeat their predecessor.
	assert.Equal(t, 81, res.Seen)
	assert.Equal(t, 81, res.Flushed)
}
