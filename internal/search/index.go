// Package search keeps a full-text index over harvested reviews.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/qepting91/review-harvester/internal/domain"
)

// Index wraps a Bleve search index
type Index struct {
	index  bleve.Index
	key    domain.KeyFunc
	logger *slog.Logger
}

// IndexedReview is the document stored per review.
type IndexedReview struct {
	Target     string
	ID         string
	Author     string
	Text       string
	Rating     float64
	Date       string
	Engagement float64
}

// Hit is a single search result.
type Hit struct {
	DocID     string
	Target    string
	ID        string
	Author    string
	Text      string
	Rating    int
	Date      string
	Score     float64
	Fragments map[string][]string
}

// Open opens or creates a Bleve index at path.
func Open(path string, key domain.KeyFunc, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if key == nil {
		key = domain.ExplicitKey
	}

	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	return &Index{index: idx, key: key, logger: logger}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = "en"

	keywordFieldMapping := bleve.NewKeywordFieldMapping()

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("Target", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("ID", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("Author", bleve.NewTextFieldMapping())
	docMapping.AddFieldMappingsAt("Text", textFieldMapping)
	docMapping.AddFieldMappingsAt("Rating", bleve.NewNumericFieldMapping())
	docMapping.AddFieldMappingsAt("Date", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("Engagement", bleve.NewNumericFieldMapping())

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = "en"
	indexMapping.AddDocumentMapping("_default", docMapping)
	return indexMapping
}

func (i *Index) Close() error {
	return i.index.Close()
}

// Count returns the number of documents in the index
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}

// Add indexes records for target in one batch. Re-adding a record replaces
// its document.
func (i *Index) Add(target string, records []domain.Record) error {
	batch := i.index.NewBatch()
	for _, r := range records {
		doc := IndexedReview{
			Target:     target,
			ID:         r.ID,
			Author:     r.Author,
			Text:       r.Text,
			Rating:     float64(r.Rating),
			Date:       r.Date,
			Engagement: float64(r.Engagement),
		}
		if err := batch.Index(target+"/"+i.key(r), doc); err != nil {
			return fmt.Errorf("batch index %s: %w", r.ID, err)
		}
	}
	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Search runs a query-string query ("crash +Rating:<=2", "Author:ann").
func (i *Index) Search(queryStr string, limit int) ([]Hit, error) {
	query := bleve.NewQueryStringQuery(queryStr)
	req := bleve.NewSearchRequestOptions(query, limit, 0, false)
	req.Highlight = bleve.NewHighlight()
	req.Fields = []string{"Target", "ID", "Author", "Text", "Rating", "Date"}

	results, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]Hit, 0, len(results.Hits))
	for _, h := range results.Hits {
		hit := Hit{DocID: h.ID, Score: h.Score, Fragments: h.Fragments}
		hit.Target, _ = h.Fields["Target"].(string)
		hit.ID, _ = h.Fields["ID"].(string)
		hit.Author, _ = h.Fields["Author"].(string)
		hit.Text, _ = h.Fields["Text"].(string)
		hit.Date, _ = h.Fields["Date"].(string)
		if rating, ok := h.Fields["Rating"].(float64); ok {
			hit.Rating = int(rating)
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Sink returns a domain.Sink that indexes flushed batches under target. The
// sink does not own the index; closing it is a no-op.
func (i *Index) Sink(target string) domain.Sink {
	return &indexSink{index: i, target: target}
}

type indexSink struct {
	index  *Index
	target string
}

func (s *indexSink) Flush(ctx context.Context, batch []domain.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.index.Add(s.target, batch); err != nil {
		return err
	}
	s.index.logger.Debug("indexed batch", "target", s.target, "size", len(batch))
	return nil
}

func (s *indexSink) Mode() domain.Mode { return domain.ModeMerge }

func (s *indexSink) Close() error { return nil }
