package collector

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/qepting91/review-harvester/internal/domain"
	"github.com/qepting91/review-harvester/internal/extract"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"
)

// Selectors locate review fields inside a listing page. Attribute fields name
// the attribute to read; an empty attribute means the element text.
type Selectors struct {
	Review     string `json:"review"`
	ID         string `json:"id"`
	IDAttr     string `json:"id_attr"`
	Author     string `json:"author"`
	Avatar     string `json:"avatar"`
	AvatarAttr string `json:"avatar_attr"`
	Text       string `json:"text"`
	Rating     string `json:"rating"`
	RatingAttr string `json:"rating_attr"`
	Date       string `json:"date"`
	Engagement string `json:"engagement"`
	// More is the "load more" link; its href is the next page.
	More     string `json:"more"`
	MoreAttr string `json:"more_attr"`
}

func DefaultSelectors() Selectors {
	return Selectors{
		Review:     ".review",
		ID:         "[data-review-id]",
		IDAttr:     "data-review-id",
		Author:     ".review-author",
		Avatar:     "img.review-avatar",
		AvatarAttr: "src",
		Text:       ".review-text",
		Rating:     ".review-rating",
		RatingAttr: "aria-label",
		Date:       ".review-date",
		Engagement: ".review-helpful",
		More:       "a.load-more",
		MoreAttr:   "href",
	}
}

type PageConfig struct {
	// BaseURL resolves targets that are not absolute URLs.
	BaseURL string
	// SortParam and Sort are added to the first request so the listing is
	// stable across reveals.
	SortParam         string
	Sort              string
	UserAgent         string
	RequestsPerSecond float64
	Timeout           time.Duration
	Selectors         Selectors
}

func DefaultPageConfig() PageConfig {
	return PageConfig{
		SortParam:         "sort",
		Sort:              "newest",
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
		RequestsPerSecond: 2,
		Timeout:           30 * time.Second,
		Selectors:         DefaultSelectors(),
	}
}

// PageDriver scrapes server-rendered review listings that paginate through a
// "load more" link.
type PageDriver struct {
	cfg    PageConfig
	http   *resty.Client
	logger *slog.Logger
}

func NewPageDriver(cfg PageConfig, logger *slog.Logger) (*PageDriver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Selectors.Review == "" {
		return nil, fmt.Errorf("page driver: review selector is required")
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	if cfg.UserAgent != "" {
		client.SetHeader("user-agent", cfg.UserAgent)
	}
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	if cfg.RequestsPerSecond > 0 {
		// burst >= 1 so a single request never waits on an empty bucket
		limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(1, int(cfg.RequestsPerSecond)))
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}

	return &PageDriver{cfg: cfg, http: client, logger: logger}, nil
}

func (d *PageDriver) Open(ctx context.Context, target string) (domain.Session, error) {
	ctx, span := otel.Tracer("review-harvester/collector").Start(ctx, "page.Open")
	defer span.End()

	first, err := d.resolve(target)
	if err != nil {
		return nil, domain.NewError(domain.KindDriver, "open", err)
	}
	if d.cfg.SortParam != "" && d.cfg.Sort != "" {
		q := first.Query()
		q.Set(d.cfg.SortParam, d.cfg.Sort)
		first.RawQuery = q.Encode()
	}

	logger := d.logger.With("target", target)
	norm := extract.Normalizer{Logger: logger}
	next := first.String()

	return newPagedSession(ctx, func(ctx context.Context) ([]domain.Record, bool, error) {
		page, err := url.Parse(next)
		if err != nil {
			return nil, false, err
		}
		doc, err := d.get(ctx, next)
		if err != nil {
			return nil, false, err
		}
		records := d.records(doc, norm)
		more := d.moreLink(doc, page)
		next = more
		return records, more != "", nil
	}, logger)
}

func (d *PageDriver) resolve(target string) (*url.URL, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if u.IsAbs() {
		return u, nil
	}
	if d.cfg.BaseURL == "" {
		return nil, fmt.Errorf("target %q is not an absolute url and no base url is set", target)
	}
	base, err := url.Parse(d.cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	return base.ResolveReference(u), nil
}

func (d *PageDriver) get(ctx context.Context, u string) (*goquery.Document, error) {
	res, err := d.http.R().
		SetContext(ctx).
		Get(u)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("get %s: status %d", u, res.StatusCode())
	}
	return goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
}

func (d *PageDriver) records(doc *goquery.Document, norm extract.Normalizer) []domain.Record {
	sel := d.cfg.Selectors
	var out []domain.Record
	doc.Find(sel.Review).Each(func(_ int, node *goquery.Selection) {
		rec, _ := norm.Record(extract.Raw{
			ID:         field(node, sel.ID, sel.IDAttr),
			Author:     field(node, sel.Author, ""),
			Avatar:     field(node, sel.Avatar, sel.AvatarAttr),
			Text:       field(node, sel.Text, ""),
			Rating:     field(node, sel.Rating, sel.RatingAttr),
			Date:       field(node, sel.Date, ""),
			Engagement: field(node, sel.Engagement, ""),
		})
		out = append(out, rec)
	})
	return out
}

func (d *PageDriver) moreLink(doc *goquery.Document, page *url.URL) string {
	sel := d.cfg.Selectors
	if sel.More == "" {
		return ""
	}
	attr := sel.MoreAttr
	if attr == "" {
		attr = "href"
	}
	href, ok := doc.Find(sel.More).First().Attr(attr)
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		d.logger.Warn("ignoring unparseable load-more link", "href", href, "err", err)
		return ""
	}
	return page.ResolveReference(ref).String()
}

// field reads selector within node, matching the node itself when it is the
// element carrying the value.
func field(node *goquery.Selection, selector, attr string) string {
	if selector == "" {
		return ""
	}
	target := node.Find(selector).First()
	if target.Length() == 0 && node.Is(selector) {
		target = node
	}
	if target.Length() == 0 {
		return ""
	}
	if attr != "" {
		v, _ := target.Attr(attr)
		return v
	}
	return target.Text()
}
