package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/qepting91/review-harvester/internal/domain"
)

// Options configure the sinks Open can build.
type Options struct {
	Key    domain.KeyFunc
	Logger *slog.Logger

	S3Region   string
	S3Endpoint string
	// GCSCredentialsFile is optional; application default credentials are
	// used otherwise.
	GCSCredentialsFile string
}

// Open builds the sink for a destination:
//
//	s3://bucket/key[.gz|.zst]   ObjectSink on S3
//	gs://bucket/key[.gz|.zst]   ObjectSink on GCS
//	sqlite://path, *.db         SQLiteSink scoped to target
//	*.ndjson, *.jsonl           NDJSONSink (append)
//	*.json                      JSONArraySink (read-merge-write)
func Open(ctx context.Context, destination, target string, opts Options) (domain.Sink, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("destination", destination)

	if u, err := url.Parse(destination); err == nil {
		switch u.Scheme {
		case "s3":
			bucket, err := NewS3Bucket(ctx, u.Host, opts.S3Region, opts.S3Endpoint)
			if err != nil {
				return nil, fmt.Errorf("s3 bucket %s: %w", u.Host, err)
			}
			return NewObjectSink(bucket, objectKey(u), opts.Key, logger), nil
		case "gs":
			bucket, err := NewGCSBucket(ctx, u.Host, opts.GCSCredentialsFile)
			if err != nil {
				return nil, fmt.Errorf("gcs bucket %s: %w", u.Host, err)
			}
			return NewObjectSink(bucket, objectKey(u), opts.Key, logger), nil
		case "sqlite":
			return OpenSQLiteSink(strings.TrimPrefix(destination, "sqlite://"), target, opts.Key, logger)
		}
	}

	switch strings.ToLower(filepath.Ext(destination)) {
	case ".ndjson", ".jsonl":
		return NewNDJSONSink(destination, opts.Key, logger)
	case ".json":
		return NewJSONArraySink(destination, opts.Key, logger)
	case ".db", ".sqlite", ".sqlite3":
		return OpenSQLiteSink(destination, target, opts.Key, logger)
	}
	return nil, fmt.Errorf("unsupported destination %q", destination)
}

// OpenAll opens every destination and tees them when there is more than one.
func OpenAll(ctx context.Context, destinations []string, target string, opts Options) (domain.Sink, error) {
	if len(destinations) == 0 {
		return nil, fmt.Errorf("no destination for %s", target)
	}
	var sinks []domain.Sink
	for _, d := range destinations {
		s, err := Open(ctx, d, target, opts)
		if err != nil {
			for _, opened := range sinks {
				opened.Close()
			}
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return NewMultiSink(sinks...), nil
}

func objectKey(u *url.URL) string {
	return strings.TrimPrefix(u.Path, "/")
}
