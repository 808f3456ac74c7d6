// Package dashboard serves charts over a harvested destination and exposes
// the process metrics.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/qepting91/review-harvester/internal/domain"
)

type Server struct {
	loader domain.Loader
	logger *slog.Logger
}

func New(loader domain.Loader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{loader: loader, logger: logger}
}

// Stats summarizes a destination.
type Stats struct {
	Total         int            `json:"total"`
	AverageRating float64        `json:"average_rating"`
	Ratings       map[int]int    `json:"ratings"`
	PerMonth      map[string]int `json:"per_month"`
	Undated       int            `json:"undated"`
}

func Summarize(records []domain.Record) Stats {
	st := Stats{
		Total:    len(records),
		Ratings:  make(map[int]int),
		PerMonth: make(map[string]int),
	}
	rated, sum := 0, 0
	for _, r := range records {
		if r.Rating >= domain.MinRating && r.Rating <= domain.MaxRating {
			st.Ratings[r.Rating]++
			rated++
			sum += r.Rating
		}
		t, err := time.Parse(time.RFC3339, r.Date)
		if err != nil {
			st.Undated++
			continue
		}
		st.PerMonth[t.Format("2006-01")]++
	}
	if rated > 0 {
		st.AverageRating = float64(sum) / float64(rated)
	}
	return st
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleCharts)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting dashboard", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) load(w http.ResponseWriter, r *http.Request) (Stats, bool) {
	records, err := s.loader.Load(r.Context())
	if err != nil {
		s.logger.Error("dashboard load failed", "error", err)
		http.Error(w, "failed to load reviews", http.StatusInternalServerError)
		return Stats{}, false
	}
	return Summarize(records), true
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, ok := s.load(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		s.logger.Warn("encode stats", "error", err)
	}
}

func (s *Server) handleCharts(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	st, ok := s.load(w, r)
	if !ok {
		return
	}

	// 1. Rating distribution
	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Rating Distribution",
			Subtitle: fmt.Sprintf("%d reviews, average %.2f", st.Total, st.AverageRating),
		}),
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
	)
	var pieItems []opts.PieData
	for rating := domain.MaxRating; rating >= domain.MinRating; rating-- {
		pieItems = append(pieItems, opts.PieData{Name: fmt.Sprintf("%d stars", rating), Value: st.Ratings[rating]})
	}
	pie.AddSeries("Reviews", pieItems)

	// 2. Review velocity
	months := make([]string, 0, len(st.PerMonth))
	for m := range st.PerMonth {
		months = append(months, m)
	}
	sort.Strings(months)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Reviews per Month"}),
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
	)
	barY := make([]opts.BarData, 0, len(months))
	for _, m := range months {
		barY = append(barY, opts.BarData{Value: st.PerMonth[m]})
	}
	bar.SetXAxis(months).AddSeries("Reviews", barY)

	page := components.NewPage()
	page.PageTitle = "Review Harvester"
	page.AddCharts(pie, bar)
	if err := page.Render(w); err != nil {
		s.logger.Warn("render dashboard", "error", err)
	}
}
