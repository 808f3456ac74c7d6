// Package harvest drives an incremental source session into a sink.
//
// One run owns one State and one driver session. Each iteration fetches the
// next ordinal range, admits unseen records, flushes the buffer when it
// reaches the threshold, and either stops (target reached or the source went
// stagnant) or triggers a reveal and waits for the source to settle.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/qepting91/review-harvester/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Phase is a state of the orchestration loop.
type Phase int

const (
	Polling Phase = iota
	Evaluating
	Continue
	Flushing
	Stagnating
	Done
	Failed
)

func (p Phase) String() string {
	switch p {
	case Polling:
		return "POLLING"
	case Evaluating:
		return "EVALUATING"
	case Continue:
		return "CONTINUE"
	case Flushing:
		return "FLUSH"
	case Stagnating:
		return "STAGNATING"
	case Done:
		return "DONE"
	case Failed:
		return "FAILED"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Result is the terminal report of a run.
type Result struct {
	Target string
	Phase  Phase
	// Accepted counts records admitted during this run.
	Accepted int
	// Seen counts identities known at the end, including resumed ones.
	Seen     int
	Flushed  int
	Flushes  int
	Reveals  int
	Duration time.Duration
	Err      error
	// Unflushed keeps records that could not be persisted.
	Unflushed []domain.Record
}

func (r Result) OK() bool {
	return r.Phase == Done
}

// Evaluate applies the termination policy after a poll that admitted
// admitted records, updating the stagnation streak.
func Evaluate(st *State, admitted int, opts Options) Phase {
	if len(st.Seen) >= opts.Target {
		return Done
	}
	if admitted == 0 {
		st.StagnationStreak++
		if st.StagnationStreak >= opts.StagnationLimit {
			return Done
		}
		return Stagnating
	}
	st.StagnationStreak = 0
	if len(st.Pending) >= opts.FlushThreshold {
		return Flushing
	}
	return Continue
}

// Harvester runs the orchestration loop against one driver and one sink.
type Harvester struct {
	driver domain.Driver
	sink   domain.Sink
	opts   Options
	logger *slog.Logger
	sleep  func(context.Context, time.Duration) error
}

func New(driver domain.Driver, sink domain.Sink, opts Options, logger *slog.Logger) *Harvester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Harvester{
		driver: driver,
		sink:   sink,
		opts:   opts,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Run harvests target until the target count is reached, the source
// stagnates, or a fault occurs. It never returns an error directly; faults
// surface as a Failed result.
func (h *Harvester) Run(ctx context.Context, target string) (out Result) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "harvest.Run", trace.WithAttributes(attribute.String("target", target)))
	defer span.End()

	logger := h.logger.With("target", target)
	res := &Result{Target: target}
	st := NewState()

	defer func() {
		res.Seen = len(st.Seen)
		res.Duration = time.Since(start)
		runs.WithLabelValues(res.Phase.String()).Inc()
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Phase.String())
		}
		logger.Info("harvest finished",
			"phase", res.Phase.String(),
			"accepted", res.Accepted,
			"seen", len(st.Seen),
			"flushes", res.Flushes,
			"duration", res.Duration,
			"err", res.Err,
		)
		out = *res
	}()

	if err := h.opts.Validate(); err != nil {
		res.Phase, res.Err = Failed, fmt.Errorf("invalid options: %w", err)
		return *res
	}

	dedup := NewDeduplicator(st, h.opts.Identity, logger)
	if h.opts.Resume {
		if err := h.seed(ctx, target, dedup, logger); err != nil {
			res.Phase, res.Err = Failed, err
			return *res
		}
	}

	logger.Info("harvest started",
		"n", h.opts.Target,
		"batch_size", h.opts.BatchSize,
		"flush_threshold", h.opts.FlushThreshold,
		"sink_mode", h.sink.Mode(),
	)

	session, err := h.open(ctx, target, logger)
	if err != nil {
		res.Phase, res.Err = Failed, err
		return *res
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("closing session", "err", err)
		}
	}()

	fetcher := NewFetcher(session, h.opts.RevealTimeout, logger)

	for {
		// POLLING
		if err := ctx.Err(); err != nil {
			h.finish(ctx, st, res, Failed, fmt.Errorf("harvest cancelled: %w", err), logger)
			return *res
		}

		want := min(h.opts.BatchSize, h.opts.Target-len(st.Seen))
		if want <= 0 {
			h.finish(ctx, st, res, Done, nil, logger)
			return *res
		}

		records, fetchErr := fetcher.FetchRange(ctx, st.Cursor, st.Cursor+want)

		// EVALUATING
		admitted := 0
		for _, r := range records {
			r.Source = target
			if dedup.Accept(r) {
				admitted++
			}
		}
		st.Cursor += len(records)
		res.Accepted += admitted
		recordsAdmitted.Add(float64(admitted))
		recordsRejected.Add(float64(len(records) - admitted))

		if fetchErr != nil {
			h.finish(ctx, st, res, Failed, fetchErr, logger)
			return *res
		}

		switch Evaluate(st, admitted, h.opts) {
		case Done:
			if st.StagnationStreak >= h.opts.StagnationLimit {
				logger.Info("source stagnant, treating as exhausted", "streak", st.StagnationStreak)
			}
			h.finish(ctx, st, res, Done, nil, logger)
			return *res
		case Flushing:
			if err := h.flush(ctx, st, res, logger); err != nil {
				h.finish(ctx, st, res, Failed, err, logger)
				return *res
			}
		case Stagnating:
			stagnations.Inc()
			logger.Debug("no new records", "streak", st.StagnationStreak, "cursor", st.Cursor)
		}

		if err := h.reveal(ctx, session, res, logger); err != nil {
			h.finish(ctx, st, res, Failed, err, logger)
			return *res
		}
		// Cancellation during the settle wait is handled at the top of POLLING.
		_ = h.sleep(ctx, h.opts.SettleInterval)
	}
}

// seed marks the target's existing records as seen. Records another target
// wrote to the same destination are skipped; unattributed ones count.
func (h *Harvester) seed(ctx context.Context, target string, dedup *Deduplicator, logger *slog.Logger) error {
	loader, ok := h.sink.(domain.Loader)
	if !ok {
		logger.Warn("sink cannot load existing records, resume ignored", "sink_mode", h.sink.Mode())
		return nil
	}
	existing, err := loader.Load(ctx)
	if err != nil {
		return domain.NewError(domain.KindSinkWrite, "load existing", err)
	}
	own := existing[:0:0]
	for _, r := range existing {
		if r.Source == "" || r.Source == target {
			own = append(own, r)
		}
	}
	n := dedup.Seed(own)
	logger.Info("resumed from sink", "existing", len(existing), "other_targets", len(existing)-len(own), "seeded", n)
	return nil
}

// open starts a session, retrying timeouts within the reveal budget.
func (h *Harvester) open(ctx context.Context, target string, logger *slog.Logger) (domain.Session, error) {
	var session domain.Session
	err := h.retryTimeouts(ctx, "open", logger, func(ctx context.Context) error {
		var err error
		session, err = h.driver.Open(ctx, target)
		return err
	})
	return session, err
}

func (h *Harvester) reveal(ctx context.Context, session domain.Session, res *Result, logger *slog.Logger) error {
	ctx, span := tracer.Start(ctx, "harvest.Reveal")
	defer span.End()

	err := h.retryTimeouts(ctx, "reveal", logger, func(ctx context.Context) error {
		res.Reveals++
		err := session.TriggerReveal(ctx)
		if err != nil {
			reveals.WithLabelValues("error").Inc()
		} else {
			reveals.WithLabelValues("ok").Inc()
		}
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reveal failed")
	}
	return err
}

// retryTimeouts calls fn under the per-call timeout. Timeouts are retried up
// to RevealRetries times; any other error is returned at once.
func (h *Harvester) retryTimeouts(ctx context.Context, op string, logger *slog.Logger, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= h.opts.RevealRetries; attempt++ {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if h.opts.RevealTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, h.opts.RevealTimeout)
		}
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		if !isTimeout(err) {
			return domain.NewError(domain.KindDriver, op, err)
		}
		lastErr = err
		logger.Warn("driver timeout, retrying",
			"op", op,
			"attempt", attempt+1,
			"budget", h.opts.RevealRetries+1,
			"err", err,
		)
		if err := h.sleep(ctx, h.opts.SettleInterval); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return domain.NewError(domain.KindDriverTimeout, op,
		fmt.Errorf("gave up after %d attempts: %w", h.opts.RevealRetries+1, lastErr))
}

// flush hands Pending to the sink, retrying with exponential backoff. On
// success Pending is replaced with a fresh slice so the sink may keep the
// batch it was given.
func (h *Harvester) flush(ctx context.Context, st *State, res *Result, logger *slog.Logger) error {
	if len(st.Pending) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "harvest.Flush", trace.WithAttributes(attribute.Int("size", len(st.Pending))))
	defer span.End()

	batch := st.Pending
	delay := h.opts.FlushBackoff
	var lastErr error
	for attempt := 0; attempt <= h.opts.FlushRetries; attempt++ {
		err := h.sink.Flush(ctx, batch)
		if err == nil {
			flushes.WithLabelValues("ok").Inc()
			flushBatchSize.Observe(float64(len(batch)))
			res.Flushes++
			res.Flushed += len(batch)
			st.Pending = nil
			logger.Info("flushed batch", "size", len(batch), "attempt", attempt+1, "total_flushed", res.Flushed)
			return nil
		}
		flushes.WithLabelValues("error").Inc()
		lastErr = err
		logger.Warn("flush failed",
			"kind", domain.KindSinkWrite,
			"size", len(batch),
			"attempt", attempt+1,
			"budget", h.opts.FlushRetries+1,
			"err", err,
		)
		if attempt == h.opts.FlushRetries {
			break
		}
		if err := h.sleep(ctx, delay); err != nil {
			lastErr = errors.Join(lastErr, err)
			break
		}
		delay *= 2
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "flush failed")
	return domain.NewError(domain.KindSinkWrite, "flush", lastErr)
}

// finish moves the run to its terminal phase. Pending records are flushed
// first; on the failure path that flush is best-effort and runs detached from
// ctx so a cancelled run still persists what it has. A run failed by the sink
// has already spent its flush budget and keeps Pending as is.
func (h *Harvester) finish(ctx context.Context, st *State, res *Result, phase Phase, cause error, logger *slog.Logger) {
	flushCtx := ctx
	if phase == Failed {
		var cancel context.CancelFunc
		flushCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
	}

	sinkFailed := phase == Failed && domain.IsKind(cause, domain.KindSinkWrite)
	if sinkFailed {
		logger.Warn("sink exhausted its retries, keeping pending records", "pending", len(st.Pending))
	} else if err := h.flush(flushCtx, st, res, logger); err != nil {
		if phase == Done {
			phase, cause = Failed, err
		} else {
			cause = errors.Join(cause, err)
		}
	}

	res.Phase = phase
	res.Err = cause
	if len(st.Pending) > 0 {
		res.Unflushed = st.Pending
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
