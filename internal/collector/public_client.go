package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/qepting91/review-harvester/internal/domain"
	"github.com/qepting91/review-harvester/internal/extract"
	"golang.org/x/time/rate"
)

const redditPublicBaseURL = "https://www.reddit.com"

// RedditPublicDriver pages through the unauthenticated JSON listing.
type RedditPublicDriver struct {
	http     *resty.Client
	limiter  *rate.Limiter
	pageSize int
	logger   *slog.Logger
}

type redditListing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data struct {
				Name       string  `json:"name"`
				Title      string  `json:"title"`
				Selftext   string  `json:"selftext"`
				Author     string  `json:"author"`
				Score      int     `json:"score"`
				CreatedUTC float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// NewRedditPublicDriver requires a user agent, as reddit rejects anonymous
// default agents. baseURL may be empty.
func NewRedditPublicDriver(userAgent, baseURL string, pageSize int, logger *slog.Logger) (*RedditPublicDriver, error) {
	if userAgent == "" {
		return nil, fmt.Errorf("a user agent is required for the public reddit driver")
	}
	if baseURL == "" {
		baseURL = redditPublicBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetHeader("user-agent", userAgent)
	client.SetTimeout(10 * time.Second)

	return &RedditPublicDriver{
		http: client,
		// Public JSON Limit: 1 req / 2 seconds (Stricter)
		limiter:  rate.NewLimiter(rate.Every(2*time.Second), 1),
		pageSize: pageSizeOrDefault(pageSize),
		logger:   logger,
	}, nil
}

func (d *RedditPublicDriver) Open(ctx context.Context, target string) (domain.Session, error) {
	sub := strings.TrimPrefix(target, "r/")
	logger := d.logger.With("target", target)
	norm := extract.Normalizer{Logger: logger}
	after := ""

	return newPagedSession(ctx, func(ctx context.Context) ([]domain.Record, bool, error) {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, false, err
		}
		req := d.http.R().
			SetContext(ctx).
			SetQueryParam("limit", fmt.Sprint(d.pageSize))
		if after != "" {
			req.SetQueryParam("after", after)
		}
		res, err := req.Get(fmt.Sprintf("/r/%s/new.json", sub))
		if err != nil {
			return nil, false, err
		}
		if res.IsError() {
			return nil, false, fmt.Errorf("reddit public access status: %d", res.StatusCode())
		}

		var listing redditListing
		if err := json.Unmarshal(res.Body(), &listing); err != nil {
			return nil, false, fmt.Errorf("decode listing: %w", err)
		}

		records := make([]domain.Record, 0, len(listing.Data.Children))
		for _, child := range listing.Data.Children {
			p := child.Data
			var created time.Time
			if p.CreatedUTC > 0 {
				created = time.Unix(int64(p.CreatedUTC), 0)
			}
			rec, _ := norm.Record(postRaw(p.Name, p.Author, p.Title, p.Selftext, created, p.Score))
			records = append(records, rec)
		}
		after = listing.Data.After
		return records, after != "", nil
	}, logger)
}
