package collector

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/qepting91/review-harvester/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

const reviewTemplate = `
<div class="review" data-review-id="%s">
  <img class="review-avatar" src="https://img.example/%s.png">
  <span class="review-author">%s</span>
  <div class="review-rating" aria-label="%s"></div>
  <span class="review-date">%s</span>
  <p class="review-text">%s</p>
  <div class="review-helpful">%s</div>
</div>`

func reviewListingServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/apps/demo/reviews", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Query().Get("page") {
		case "":
			assert.Equal(t, "newest", r.URL.Query().Get("sort"))
			fmt.Fprint(w, "<html><body>")
			fmt.Fprintf(w, reviewTemplate, "gp:1", "a", "Ann", "Rated 4 stars out of five stars", "March 3, 2024", "  Great   app\n", "1,204 people found this helpful")
			fmt.Fprintf(w, reviewTemplate, "gp:2", "b", "Bob", "Rated two stars out of five", "Feb 29, 2024", "Meh", "")
			fmt.Fprint(w, `<a class="load-more" href="?page=2&sort=newest">More</a></body></html>`)
		case "2":
			fmt.Fprint(w, "<html><body>")
			fmt.Fprintf(w, reviewTemplate, "gp:3", "c", "Cy", "no stars", "yesterday", "Crashes", "3")
			fmt.Fprint(w, "</body></html>")
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestPageDriver(t *testing.T, baseURL string) *PageDriver {
	t.Helper()
	cfg := DefaultPageConfig()
	cfg.BaseURL = baseURL
	cfg.RequestsPerSecond = 0
	d, err := NewPageDriver(cfg, discardLogger)
	require.NoError(t, err)
	return d
}

func TestPageDriverRevealsNextPage(t *testing.T) {
	srv, hits := reviewListingServer(t)
	d := newTestPageDriver(t, srv.URL)
	ctx := context.Background()

	session, err := d.Open(ctx, "/apps/demo/reviews")
	require.NoError(t, err)
	defer session.Close()

	first, ok, err := session.FetchAt(ctx, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.Record{
		ID:         "gp:1",
		Author:     "Ann",
		Avatar:     "https://img.example/a.png",
		Text:       "Great app",
		Rating:     4,
		Date:       "2024-03-03T00:00:00Z",
		Engagement: 1204,
	}, first)

	second, ok, err := session.FetchAt(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, second.Rating)
	assert.Equal(t, "2024-02-29T00:00:00Z", second.Date)

	_, ok, err = session.FetchAt(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok, "third review is not revealed yet")

	require.NoError(t, session.TriggerReveal(ctx))
	third, ok, err := session.FetchAt(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "gp:3", third.ID)
	assert.Zero(t, third.Rating, "unparseable rating gets its sentinel")
	assert.Empty(t, third.Date)
	assert.Equal(t, 3, third.Engagement)

	// No further link: reveals are no-ops rather than errors.
	require.NoError(t, session.TriggerReveal(ctx))
	assert.Equal(t, int32(2), hits.Load())
}

func TestPageDriverHTTPErrorIsDriverFault(t *testing.T) {
	srv, _ := reviewListingServer(t)
	d := newTestPageDriver(t, srv.URL)

	_, err := d.Open(context.Background(), "/apps/missing/reviews")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindDriver))
}

func TestPageDriverRequiresResolvableTarget(t *testing.T) {
	d := newTestPageDriver(t, "")

	_, err := d.Open(context.Background(), "/apps/demo/reviews")
	require.Error(t, err)
}

func TestPageDriverTimeoutIsClassified(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	d := newTestPageDriver(t, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := d.Open(ctx, "/slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDriverTimeout)
}

func TestField(t *testing.T) {
	srv, _ := reviewListingServer(t)
	d := newTestPageDriver(t, srv.URL)

	doc, err := d.get(context.Background(), srv.URL+"/apps/demo/reviews?sort=newest")
	require.NoError(t, err)

	node := doc.Find(".review").First()
	assert.Equal(t, "gp:1", field(node, "[data-review-id]", "data-review-id"), "selector matches the node itself")
	assert.Equal(t, "Ann", field(node, ".review-author", ""))
	assert.Empty(t, field(node, ".missing", ""))
	assert.Empty(t, field(node, "", ""))
}
