package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/qepting91/review-harvester/internal/domain"
)

// JSONArraySink keeps the destination as a single JSON array. Every flush
// reads the array, appends records with unseen identities, and atomically
// replaces the file.
type JSONArraySink struct {
	Path   string
	Key    domain.KeyFunc
	Logger *slog.Logger

	mu sync.Mutex
}

func NewJSONArraySink(path string, key domain.KeyFunc, logger *slog.Logger) (*JSONArraySink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if key == nil {
		key = domain.ExplicitKey
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &JSONArraySink{Path: path, Key: key, Logger: logger}, nil
}

func (s *JSONArraySink) Mode() domain.Mode { return domain.ModeMerge }

func (s *JSONArraySink) Close() error { return nil }

func (s *JSONArraySink) Flush(ctx context.Context, batch []domain.Record) error {
	if len(batch) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load()
	if err != nil {
		return err
	}
	merged := Dedupe(append(existing, batch...), s.Key)

	err = writeAtomic(s.Path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(merged)
	})
	if err != nil {
		return err
	}
	s.Logger.Debug("merged batch", "path", s.Path, "existing", len(existing), "batch", len(batch), "total", len(merged))
	return nil
}

func (s *JSONArraySink) Load(ctx context.Context) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *JSONArraySink) load() ([]domain.Record, error) {
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, nil
	}
	var records []domain.Record
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.Path, err)
	}
	return records, nil
}
