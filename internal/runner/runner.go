// Package runner harvests many targets with a bounded worker pool.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/qepting91/review-harvester/internal/domain"
	"github.com/qepting91/review-harvester/internal/harvest"
	"github.com/qepting91/review-harvester/internal/search"
	"github.com/qepting91/review-harvester/internal/storage"
)

type Options struct {
	Workers int
	// Harvest returns the run options for a target of count records.
	Harvest func(count int) harvest.Options
	Storage storage.Options
	// Index, when set, receives every flushed batch alongside the destination.
	Index *search.Index
	// Repair deduplicates append-mode destinations after each run.
	Repair bool
}

type Runner struct {
	driver domain.Driver
	opts   Options
	logger *slog.Logger
}

func New(driver domain.Driver, opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Harvest == nil {
		opts.Harvest = harvest.DefaultOptions
	}
	if opts.Storage.Logger == nil {
		opts.Storage.Logger = logger
	}
	return &Runner{driver: driver, opts: opts, logger: logger}
}

// job is every target writing to one destination, run in input order.
type job struct {
	indexes []int
}

// Run harvests targets and returns one Result per target in input order.
// Targets sharing a destination run sequentially on the same worker.
func (r *Runner) Run(ctx context.Context, targets []domain.Target) []harvest.Result {
	results := make([]harvest.Result, len(targets))
	jobs := groupByDestination(targets)

	jobQueue := make(chan job, len(jobs))
	var wg sync.WaitGroup

	workers := r.opts.Workers
	if workers > len(jobs) {
		workers = len(jobs)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			logger := r.logger.With("worker", id)
			for j := range jobQueue {
				for _, idx := range j.indexes {
					if err := ctx.Err(); err != nil {
						results[idx] = skipped(targets[idx], err)
						continue
					}
					results[idx] = r.runOne(ctx, targets[idx], logger)
				}
			}
		}(i)
	}

	r.logger.Info("starting harvest", "targets", len(targets), "jobs", len(jobs), "workers", workers)
	for _, j := range jobs {
		jobQueue <- j
	}
	close(jobQueue)
	wg.Wait()

	return results
}

func groupByDestination(targets []domain.Target) []job {
	var jobs []job
	byDest := make(map[string]int)
	for i, t := range targets {
		n, ok := byDest[t.Destination]
		if !ok {
			n = len(jobs)
			byDest[t.Destination] = n
			jobs = append(jobs, job{})
		}
		jobs[n].indexes = append(jobs[n].indexes, i)
	}
	return jobs
}

func skipped(t domain.Target, err error) harvest.Result {
	return harvest.Result{Target: t.Source, Phase: harvest.Failed, Err: err}
}

func (r *Runner) runOne(ctx context.Context, t domain.Target, logger *slog.Logger) harvest.Result {
	logger = logger.With("target", t.Source, "destination", t.Destination)

	sink, err := r.openSink(ctx, t)
	if err != nil {
		logger.Error("failed to open destination", "error", err)
		return skipped(t, domain.NewError(domain.KindSinkWrite, "open", err))
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("closing sink", "error", err)
		}
	}()

	res := harvest.New(r.driver, sink, r.opts.Harvest(t.Count), logger).Run(ctx, t.Source)

	if repairer, ok := sink.(domain.Repairer); ok && r.opts.Repair && res.Flushes > 0 {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
		stats, err := repairer.Repair(rctx)
		cancel()
		if err != nil {
			logger.Warn("repair failed", "error", err)
		} else if stats.Removed > 0 {
			logger.Info("repaired destination", "read", stats.Read, "kept", stats.Kept, "removed", stats.Removed)
		}
	}
	return res
}

func (r *Runner) openSink(ctx context.Context, t domain.Target) (domain.Sink, error) {
	sink, err := storage.Open(ctx, t.Destination, t.Source, r.opts.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", t.Destination, err)
	}
	if r.opts.Index == nil {
		return sink, nil
	}
	return storage.NewMultiSink(sink, r.opts.Index.Sink(t.Source)), nil
}
