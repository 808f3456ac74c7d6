package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/qepting91/review-harvester/internal/domain"
)

// LoadTargets reads a target list with a header row and
// target,count[,destination] rows. Invalid rows are skipped and logged.
// Missing counts and destinations fall back to defaultCount and
// defaultDestination.
func LoadTargets(path string, defaultCount int, defaultDestination string, logger *slog.Logger) ([]domain.Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTargets(f, defaultCount, defaultDestination, logger)
}

func ReadTargets(src io.Reader, defaultCount int, defaultDestination string, logger *slog.Logger) ([]domain.Target, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Wrap in BOM stripper
	r := csv.NewReader(stripBOM(src))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.Comment = '#'

	var targets []domain.Target
	line := 0
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			logger.Warn("skipping unreadable target row", "line", line, "err", err)
			continue
		}
		if line == 1 {
			continue // header
		}

		t, err := parseTarget(record, defaultCount, defaultDestination)
		if err != nil {
			logger.Warn("skipping invalid target row", "line", line, "err", err)
			continue
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func parseTarget(record []string, defaultCount int, defaultDestination string) (domain.Target, error) {
	t := domain.Target{Count: defaultCount, Destination: defaultDestination}
	if len(record) == 0 || strings.TrimSpace(record[0]) == "" {
		return t, fmt.Errorf("empty target")
	}
	t.Source = strings.TrimSpace(record[0])

	if len(record) > 1 && strings.TrimSpace(record[1]) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(record[1]))
		if err != nil {
			return t, fmt.Errorf("count %q: %w", record[1], err)
		}
		t.Count = n
	}
	if t.Count <= 0 {
		return t, fmt.Errorf("count must be positive, got %d", t.Count)
	}

	if len(record) > 2 && strings.TrimSpace(record[2]) != "" {
		t.Destination = strings.TrimSpace(record[2])
	}
	if t.Destination == "" {
		return t, fmt.Errorf("no destination for %s", t.Source)
	}
	return t, nil
}

func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	rdr, _, err := br.ReadRune()
	if err != nil {
		return br
	}
	if rdr != '\uFEFF' {
		br.UnreadRune()
	}
	return br
}
