package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/qepting91/review-harvester/internal/domain"
)

// ErrObjectNotFound is returned by a Bucket for a missing key.
var ErrObjectNotFound = errors.New("object not found")

// Bucket is the minimal object-store surface the sink needs.
type Bucket interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Close() error
}

// ObjectSink keeps the harvest as one NDJSON object, optionally compressed.
// Object stores replace whole objects, so every flush reads, merges and
// rewrites it.
type ObjectSink struct {
	bucket Bucket
	key    string
	codec  Codec
	ident  domain.KeyFunc
	logger *slog.Logger

	mu sync.Mutex
}

func NewObjectSink(bucket Bucket, key string, ident domain.KeyFunc, logger *slog.Logger) *ObjectSink {
	if logger == nil {
		logger = slog.Default()
	}
	if ident == nil {
		ident = domain.ExplicitKey
	}
	return &ObjectSink{
		bucket: bucket,
		key:    key,
		codec:  CodecFor(key),
		ident:  ident,
		logger: logger,
	}
}

func (s *ObjectSink) Mode() domain.Mode { return domain.ModeMerge }

func (s *ObjectSink) Close() error { return s.bucket.Close() }

func (s *ObjectSink) Flush(ctx context.Context, batch []domain.Record) error {
	if len(batch) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load(ctx)
	if err != nil {
		return err
	}
	merged := Dedupe(append(existing, batch...), s.ident)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range merged {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode record %s: %w", r.ID, err)
		}
	}
	payload, err := s.codec.Encode(buf.Bytes())
	if err != nil {
		return fmt.Errorf("%s encode: %w", s.codec.Name(), err)
	}
	if err := s.bucket.Put(ctx, s.key, payload); err != nil {
		return fmt.Errorf("put %s: %w", s.key, err)
	}
	s.logger.Debug("object rewritten", "key", s.key, "records", len(merged), "bytes", len(payload), "codec", s.codec.Name())
	return nil
}

func (s *ObjectSink) Load(ctx context.Context) ([]domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *ObjectSink) load(ctx context.Context) ([]domain.Record, error) {
	payload, err := s.bucket.Get(ctx, s.key)
	if errors.Is(err, ErrObjectNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", s.key, err)
	}
	data, err := s.codec.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.key, err)
	}
	return readNDJSON(ctx, bytes.NewReader(data), s.logger)
}
