package storage

import (
	"bufio"
	"bytes"
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

// maxLineSize bounds a single NDJSON line on read.
const maxLineSize = 4 << 20

// NDJSONSink appends each batch to a newline-delimited JSON file. A failed
// flush truncates the file back to its size before the flush, so a batch is
// either fully present or absent.
type NDJSONSink struct {
	Path   string
	Key    domain.KeyFunc
	Logger *slog.Logger

	mu sync.Mutex
}

func NewNDJSONSink(path string, key domain.KeyFunc, logger *slog.Logger) (*NDJSONSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if key == nil {
		key = domain.ExplicitKey
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &NDJSONSink{Path: path, Key: key, Logger: logger}, nil
}

func (s *NDJSONSink) Mode() domain.Mode { return domain.ModeAppend }

func (s *NDJSONSink) Close() error { return nil }

func (s *NDJSONSink) Flush(ctx context.Context, batch []domain.Record) error {
	if len(batch) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range batch {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode record %s: %w", r.ID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.Path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	offset := info.Size()

	payload := buf.Bytes()
	if offset > 0 {
		// keep a torn line left by a crashed writer off our first record
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, offset-1); err != nil {
			return err
		}
		if last[0] != '\n' {
			payload = append([]byte{'\n'}, payload...)
		}
	}

	if _, err := f.Write(payload); err != nil {
		return s.rollback(f, offset, err)
	}
	if err := f.Sync(); err != nil {
		return s.rollback(f, offset, err)
	}
	return nil
}

func (s *NDJSONSink) rollback(f *os.File, offset int64, cause error) error {
	if err := f.Truncate(offset); err != nil {
		s.Logger.Error("could not roll back partial batch", "path", s.Path, "offset", offset, "err", err)
		return errors.Join(cause, fmt.Errorf("truncate to %d: %w", offset, err))
	}
	return cause
}

// Load reads every stored record. A torn final line from an interrupted write
// is skipped with a warning.
func (s *NDJSONSink) Load(ctx context.Context) ([]domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *NDJSONSink) load(ctx context.Context) ([]domain.Record, error) {
	f, err := os.Open(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readNDJSON(ctx, f, s.Logger)
}

func readNDJSON(ctx context.Context, r io.Reader, logger *slog.Logger) ([]domain.Record, error) {
	var records []domain.Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		var rec domain.Record
		if err := json.Unmarshal(b, &rec); err != nil {
			logger.Warn("skipping unreadable line", "line", line, "err", err)
			continue
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}

// Repair rewrites the file keeping the first occurrence of every identity.
// The rewrite goes through a temp file and rename, so a crash leaves either
// the old or the new file.
func (s *NDJSONSink) Repair(ctx context.Context) (domain.RepairStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return domain.RepairStats{}, err
	}
	kept := Dedupe(records, s.Key)
	stats := domain.RepairStats{Read: len(records), Kept: len(kept), Removed: len(records) - len(kept)}
	if len(records) == 0 {
		return stats, nil
	}

	err = writeAtomic(s.Path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		for _, r := range kept {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.RepairStats{}, fmt.Errorf("rewrite %s: %w", s.Path, err)
	}
	s.Logger.Info("repaired output", "path", s.Path, "read", stats.Read, "kept", stats.Kept, "removed", stats.Removed)
	return stats, nil
}

// Dedupe keeps the first record of each identity, preserving order.
func Dedupe(records []domain.Record, key domain.KeyFunc) []domain.Record {
	if key == nil {
		key = domain.ExplicitKey
	}
	seen := make(map[string]struct{}, len(records))
	out := make([]domain.Record, 0, len(records))
	for _, r := range records {
		k := key(r)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}
