package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/qepting91/review-harvester/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticLoader struct {
	records []domain.Record
	err     error
}

func (l staticLoader) Load(context.Context) ([]domain.Record, error) {
	return l.records, l.err
}

var sample = []domain.Record{
	{ID: "1", Rating: 5, Date: "2024-03-03T00:00:00Z"},
	{ID: "2", Rating: 4, Date: "2024-03-01T00:00:00Z"},
	{ID: "3", Rating: 1, Date: "2024-02-28T00:00:00Z"},
	{ID: "4", Rating: 0, Date: "yesterday"},
}

func TestSummarize(t *testing.T) {
	st := Summarize(sample)
	assert.Equal(t, 4, st.Total)
	assert.InDelta(t, 10.0/3.0, st.AverageRating, 1e-9)
	assert.Equal(t, map[int]int{5: 1, 4: 1, 1: 1}, st.Ratings)
	assert.Equal(t, map[string]int{"2024-03": 2, "2024-02": 1}, st.PerMonth)
	assert.Equal(t, 1, st.Undated)
}

func TestHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(New(staticLoader{records: sample}, logger).Handler())
	defer srv.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	code, body := get("/")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "Rating Distribution")
	assert.Contains(t, body, "Reviews per Month")

	code, body = get("/api/stats")
	assert.Equal(t, http.StatusOK, code)
	var st Stats
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	assert.Equal(t, 4, st.Total)

	code, body = get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "go_goroutines")

	code, _ = get("/nope")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHandlerLoadFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(staticLoader{err: errors.New("bucket unreachable")}, logger).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(staticLoader{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()
	cancel()
	assert.NoError(t, <-done)
}
