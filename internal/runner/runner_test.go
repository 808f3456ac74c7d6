package runner

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/qepting91/review-harvester/internal/collector"
	"github.com/qepting91/review-harvester/internal/domain"
	"github.com/qepting91/review-harvester/internal/harvest"
	"github.com/qepting91/review-harvester/internal/search"
	"github.com/qepting91/review-harvester/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func fastOptions(count int) harvest.Options {
	opts := harvest.DefaultOptions(count)
	opts.SettleInterval = 0
	opts.FlushThreshold = 25
	return opts
}

func mockDriver() domain.Driver {
	return collector.NewMockDriver(collector.MockConfig{Total: 100, Initial: 40, Step: 40, Seed: 7}, discardLogger)
}

func load(t *testing.T, path string) []domain.Record {
	t.Helper()
	s, err := storage.Open(context.Background(), path, "", storage.Options{Logger: discardLogger})
	require.NoError(t, err)
	defer s.Close()
	records, err := s.(domain.Loader).Load(context.Background())
	require.NoError(t, err)
	return records
}

func TestRunnerHarvestsAllTargets(t *testing.T) {
	dir := t.TempDir()
	shared := filepath.Join(dir, "shared.ndjson")
	single := filepath.Join(dir, "single.json")

	idx, err := search.Open(filepath.Join(dir, "index.bleve"), nil, discardLogger)
	require.NoError(t, err)
	defer idx.Close()

	targets := []domain.Target{
		{Source: "app-a", Count: 60, Destination: shared},
		{Source: "app-b", Count: 30, Destination: single},
		{Source: "app-c", Count: 60, Destination: shared},
	}

	r := New(mockDriver(), Options{Workers: 4, Harvest: fastOptions, Index: idx, Repair: true}, discardLogger)
	results := r.Run(context.Background(), targets)

	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, targets[i].Source, res.Target)
		assert.Equal(t, harvest.Done, res.Phase, "target %s: %v", res.Target, res.Err)
		assert.Equal(t, targets[i].Count, res.Flushed)
	}

	assert.Len(t, load(t, shared), 120)
	assert.Len(t, load(t, single), 30)

	n, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(150), n)
}

func TestRunnerRepairsReplayedRuns(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "reviews.ndjson")
	targets := []domain.Target{{Source: "app", Count: 50, Destination: dest}}

	r := New(mockDriver(), Options{Workers: 1, Harvest: fastOptions, Repair: true}, discardLogger)
	require.True(t, r.Run(context.Background(), targets)[0].OK())
	// A second run without resume writes the same 50 records again.
	require.True(t, r.Run(context.Background(), targets)[0].OK())

	assert.Len(t, load(t, dest), 50)
}

func TestRunnerResumeSkipsKnownRecords(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "reviews.ndjson")
	ctx := context.Background()

	r := New(mockDriver(), Options{Workers: 1, Harvest: fastOptions}, discardLogger)
	require.True(t, r.Run(ctx, []domain.Target{{Source: "app", Count: 30, Destination: dest}})[0].OK())

	resume := func(count int) harvest.Options {
		opts := fastOptions(count)
		opts.Resume = true
		return opts
	}
	r = New(mockDriver(), Options{Workers: 1, Harvest: resume}, discardLogger)
	res := r.Run(ctx, []domain.Target{{Source: "app", Count: 70, Destination: dest}})[0]
	require.True(t, res.OK(), "%v", res.Err)
	assert.Equal(t, 40, res.Accepted)
	assert.Equal(t, 70, res.Seen)

	assert.Len(t, load(t, dest), 70)
}

func TestRunnerResumeSharedDestination(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "shared.ndjson")
	resume := func(count int) harvest.Options {
		opts := fastOptions(count)
		opts.Resume = true
		return opts
	}
	targets := []domain.Target{
		{Source: "app-a", Count: 60, Destination: dest},
		{Source: "app-c", Count: 60, Destination: dest},
	}

	r := New(mockDriver(), Options{Workers: 2, Harvest: resume}, discardLogger)
	for i, res := range r.Run(context.Background(), targets) {
		require.True(t, res.OK(), "target %s: %v", targets[i].Source, res.Err)
		assert.Equal(t, 60, res.Accepted, targets[i].Source)
		assert.Equal(t, 60, res.Seen, targets[i].Source)
	}

	records := load(t, dest)
	require.Len(t, records, 120)
	bySource := map[string]int{}
	for _, rec := range records {
		bySource[rec.Source]++
	}
	assert.Equal(t, map[string]int{"app-a": 60, "app-c": 60}, bySource)
}

func TestRunnerBadDestination(t *testing.T) {
	r := New(mockDriver(), Options{Harvest: fastOptions}, discardLogger)
	res := r.Run(context.Background(), []domain.Target{{Source: "app", Count: 10, Destination: filepath.Join(t.TempDir(), "out.csv")}})

	require.Len(t, res, 1)
	assert.Equal(t, harvest.Failed, res[0].Phase)
	assert.True(t, domain.IsKind(res[0].Err, domain.KindSinkWrite))
}

func TestRunnerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir := t.TempDir()
	r := New(mockDriver(), Options{Workers: 2, Harvest: fastOptions}, discardLogger)
	results := r.Run(ctx, []domain.Target{
		{Source: "a", Count: 10, Destination: filepath.Join(dir, "a.ndjson")},
		{Source: "b", Count: 10, Destination: filepath.Join(dir, "b.ndjson")},
	})

	for _, res := range results {
		assert.Equal(t, harvest.Failed, res.Phase)
		assert.ErrorIs(t, res.Err, context.Canceled)
	}
}

func TestGroupByDestination(t *testing.T) {
	jobs := groupByDestination([]domain.Target{
		{Source: "a", Destination: "x"},
		{Source: "b", Destination: "y"},
		{Source: "c", Destination: "x"},
	})
	require.Len(t, jobs, 2)
	assert.Equal(t, []int{0, 2}, jobs[0].indexes)
	assert.Equal(t, []int{1}, jobs[1].indexes)
}
