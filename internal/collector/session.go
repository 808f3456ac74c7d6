package collector

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/qepting91/review-harvester/internal/domain"
)

// pageFunc loads the next page of records. more is false once the source has
// nothing left to reveal.
type pageFunc func(ctx context.Context) (records []domain.Record, more bool, err error)

// pagedSession exposes page-at-a-time sources through ordinal addressing.
// Every revealed record stays addressable at the ordinal it was revealed at.
type pagedSession struct {
	revealed  []domain.Record
	next      pageFunc
	exhausted bool
	logger    *slog.Logger
}

func newPagedSession(ctx context.Context, next pageFunc, logger *slog.Logger) (*pagedSession, error) {
	s := &pagedSession{next: next, logger: logger}
	if err := s.load(ctx, "open"); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *pagedSession) TriggerReveal(ctx context.Context) error {
	if s.exhausted {
		s.logger.Debug("nothing left to reveal", "revealed", len(s.revealed))
		return nil
	}
	return s.load(ctx, "reveal")
}

func (s *pagedSession) FetchAt(ctx context.Context, ordinal int) (domain.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Record{}, false, classify("fetch", err)
	}
	if ordinal < 0 || ordinal >= len(s.revealed) {
		return domain.Record{}, false, nil
	}
	return s.revealed[ordinal], true, nil
}

func (s *pagedSession) Close() error {
	s.revealed = nil
	return nil
}

func (s *pagedSession) load(ctx context.Context, op string) error {
	records, more, err := s.next(ctx)
	if err != nil {
		return classify(op, err)
	}
	s.revealed = append(s.revealed, records...)
	s.exhausted = !more
	s.logger.Debug("page loaded", "op", op, "records", len(records), "revealed", len(s.revealed), "more", more)
	return nil
}

// classify tags transport errors so the harvester can tell a slow source from
// a broken one.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return domain.NewError(domain.KindDriverTimeout, op, err)
	}
	return domain.NewError(domain.KindDriver, op, err)
}
