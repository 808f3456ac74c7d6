package collector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loganintech/go-reddit/v2/reddit"
	"github.com/qepting91/review-harvester/internal/domain"
	"github.com/qepting91/review-harvester/internal/extract"
	"golang.org/x/time/rate"
)

// RedditCredentials authenticate the API driver.
type RedditCredentials struct {
	ID       string
	Secret   string
	Username string
	Password string
}

// RedditAPIDriver reads a subreddit's newest posts through the authenticated
// API. Each reveal requests the next listing page.
type RedditAPIDriver struct {
	client   *reddit.Client
	limiter  *rate.Limiter
	pageSize int
	logger   *slog.Logger
}

func NewRedditAPIDriver(creds RedditCredentials, userAgent string, pageSize int, logger *slog.Logger, opts ...reddit.Opt) (*RedditAPIDriver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]reddit.Opt{reddit.WithUserAgent(userAgent)}, opts...)
	client, err := reddit.NewClient(reddit.Credentials{
		ID:       creds.ID,
		Secret:   creds.Secret,
		Username: creds.Username,
		Password: creds.Password,
	}, opts...)
	if err != nil {
		return nil, err
	}

	// 100 requests / 10 mins = ~1 request every 600ms
	limiter := rate.NewLimiter(rate.Every(600*time.Millisecond), 1)

	return &RedditAPIDriver{
		client:   client,
		limiter:  limiter,
		pageSize: pageSizeOrDefault(pageSize),
		logger:   logger,
	}, nil
}

func (d *RedditAPIDriver) Open(ctx context.Context, target string) (domain.Session, error) {
	sub := strings.TrimPrefix(target, "r/")
	logger := d.logger.With("target", target)
	norm := extract.Normalizer{Logger: logger}
	after := ""

	return newPagedSession(ctx, func(ctx context.Context) ([]domain.Record, bool, error) {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, false, err
		}
		posts, resp, err := d.client.Subreddit.NewPosts(ctx, sub, &reddit.ListOptions{Limit: d.pageSize, After: after})
		if err != nil {
			return nil, false, fmt.Errorf("authenticated api error: %w", err)
		}

		records := make([]domain.Record, 0, len(posts))
		for _, p := range posts {
			var created time.Time
			if p.Created != nil {
				created = p.Created.Time
			}
			rec, _ := norm.Record(postRaw(p.FullID, p.Author, p.Title, p.Body, created, p.Score))
			records = append(records, rec)
		}
		if resp != nil {
			after = resp.After
		}
		return records, after != "", nil
	}, logger)
}

// postRaw maps a listing post onto review fields. Posts carry no star rating,
// so the rating stays at its sentinel.
func postRaw(id, author, title, body string, created time.Time, score int) extract.Raw {
	text := title
	if body != "" {
		text = title + "\n" + body
	}
	raw := extract.Raw{
		ID:         id,
		Author:     author,
		Text:       text,
		Engagement: fmt.Sprint(max(score, 0)),
	}
	if !created.IsZero() {
		raw.Date = created.UTC().Format(time.RFC3339)
	}
	return raw
}

func pageSizeOrDefault(n int) int {
	if n <= 0 || n > 100 {
		return 25
	}
	return n
}
