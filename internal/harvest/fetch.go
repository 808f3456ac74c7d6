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
)

// Fetcher reads ordinal ranges from a session without rescanning positions it
// has already returned.
type Fetcher struct {
	session domain.Session
	timeout time.Duration
	logger  *slog.Logger
}

func NewFetcher(session domain.Session, timeout time.Duration, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{session: session, timeout: timeout, logger: logger}
}

// FetchRange queries each ordinal in [start, end) and stops at the first one
// the session reports absent. A shorter result means the revealed portion is
// exhausted, not the source. A timed out fetch ends the range the same way.
func (f *Fetcher) FetchRange(ctx context.Context, start, end int) ([]domain.Record, error) {
	ctx, span := tracer.Start(ctx, "harvest.FetchRange")
	defer span.End()
	span.SetAttributes(attribute.Int("start", start), attribute.Int("end", end))

	var records []domain.Record
	for i := start; i < end; i++ {
		rec, ok, err := f.fetchAt(ctx, i)
		if err != nil {
			if ctx.Err() == nil && isTimeout(err) {
				f.logger.Warn("fetch timed out, ending range", "ordinal", i, "err", err)
				break
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "fetch failed")
			return records, domain.NewError(domain.KindDriver, fmt.Sprintf("fetch ordinal %d", i), err)
		}
		if !ok {
			f.logger.Debug("extraction gap", "kind", domain.KindExtractionGap, "ordinal", i)
			break
		}
		records = append(records, rec)
	}

	span.SetAttributes(attribute.Int("returned", len(records)))
	return records, nil
}

func (f *Fetcher) fetchAt(ctx context.Context, ordinal int) (domain.Record, bool, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	return f.session.FetchAt(ctx, ordinal)
}

func isTimeout(err error) bool {
	return errors.Is(err, domain.ErrDriverTimeout) || errors.Is(err, context.DeadlineExceeded)
}
