package collector

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/qepting91/review-harvester/internal/domain"
	"github.com/qepting91/review-harvester/internal/extract"
)

// MockConfig shapes the synthetic review list.
type MockConfig struct {
	// Total is how many distinct positions the source will ever reveal.
	Total int
	// Initial positions are revealed on open; each reveal adds Step more.
	Initial int
	Step    int
	// DuplicateEvery > 0 makes every n-th position re-render the previous
	// review, the way lazy lists repeat items across reloads.
	DuplicateEvery int
	// MalformedEvery > 0 gives every n-th review an unparseable rating.
	MalformedEvery int
	Latency        time.Duration
	Seed           int64
}

func DefaultMockConfig() MockConfig {
	return MockConfig{
		Total:   500,
		Initial: 40,
		Step:    40,
		Latency: 50 * time.Millisecond,
		Seed:    1,
	}
}

// MockDriver implements domain.Driver over generated reviews. Fields go
// through the same normalizer as scraped ones.
type MockDriver struct {
	cfg    MockConfig
	logger *slog.Logger
}

func NewMockDriver(cfg MockConfig, logger *slog.Logger) *MockDriver {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Step <= 0 {
		cfg.Step = 1
	}
	return &MockDriver{cfg: cfg, logger: logger}
}

func (m *MockDriver) Open(ctx context.Context, target string) (domain.Session, error) {
	if err := m.wait(ctx); err != nil {
		return nil, classify("open", err)
	}
	rng := rand.New(rand.NewSource(m.cfg.Seed))
	norm := extract.Normalizer{Logger: m.logger.With("target", target)}

	s := &mockSession{driver: m, revealed: min(m.cfg.Initial, m.cfg.Total)}
	s.records = make([]domain.Record, m.cfg.Total)
	for i := range s.records {
		if m.cfg.DuplicateEvery > 0 && i > 0 && i%m.cfg.DuplicateEvery == 0 {
			s.records[i] = s.records[i-1]
			continue
		}
		s.records[i], _ = norm.Record(m.raw(rng, target, i))
	}
	return s, nil
}

var ratingWords = []string{"one", "two", "three", "four", "five"}

func (m *MockDriver) raw(rng *rand.Rand, target string, i int) extract.Raw {
	stars := rng.Intn(domain.MaxRating) + 1
	rating := fmt.Sprintf("Rated %d stars out of five stars", stars)
	if i%2 == 1 {
		rating = fmt.Sprintf("Rated %s stars out of five", ratingWords[stars-1])
	}
	if m.cfg.MalformedEvery > 0 && i%m.cfg.MalformedEvery == 0 {
		rating = "not rated"
	}

	date := time.Date(2024, time.March, 3, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -i)
	helpful := rng.Intn(2500)

	return extract.Raw{
		ID:         fmt.Sprintf("mock:%s:%d", target, i),
		Author:     fmt.Sprintf("simulated user %d", i%97),
		Avatar:     fmt.Sprintf("https://localhost/avatars/%d.png", i%97),
		Text:       fmt.Sprintf("[%s] Simulated review #%d", target, i),
		Rating:     rating,
		Date:       date.Format("January 2, 2006"),
		Engagement: formatThousands(helpful),
	}
}

func (m *MockDriver) wait(ctx context.Context) error {
	if m.cfg.Latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(m.cfg.Latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type mockSession struct {
	driver   *MockDriver
	records  []domain.Record
	revealed int
}

func (s *mockSession) TriggerReveal(ctx context.Context) error {
	if err := s.driver.wait(ctx); err != nil {
		return classify("reveal", err)
	}
	s.revealed = min(len(s.records), s.revealed+s.driver.cfg.Step)
	return nil
}

func (s *mockSession) FetchAt(ctx context.Context, ordinal int) (domain.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Record{}, false, classify("fetch", err)
	}
	if ordinal < 0 || ordinal >= s.revealed {
		return domain.Record{}, false, nil
	}
	return s.records[ordinal], true, nil
}

func (s *mockSession) Close() error { return nil }

func formatThousands(n int) string {
	if n < 1000 {
		return fmt.Sprint(n)
	}
	return fmt.Sprintf("%d,%03d", n/1000, n%1000)
}
