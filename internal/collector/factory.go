package collector

import (
	"fmt"
	"log/slog"

	"github.com/qepting91/review-harvester/internal/domain"
)

const (
	ModeMock         = "mock"
	ModePage         = "page"
	ModeRedditAPI    = "reddit-api"
	ModeRedditPublic = "reddit-public"
)

// Config selects and configures a driver.
type Config struct {
	Mode      string
	UserAgent string
	// PageSize applies to the reddit drivers.
	PageSize int
	Reddit   RedditCredentials
	Page     PageConfig
	Mock     MockConfig
}

// NewDriver selects the correct implementation based on cfg.Mode.
func NewDriver(cfg Config, logger *slog.Logger) (domain.Driver, error) {
	switch cfg.Mode {
	case ModeRedditAPI:
		return NewRedditAPIDriver(cfg.Reddit, cfg.UserAgent, cfg.PageSize, logger)
	case ModeRedditPublic:
		return NewRedditPublicDriver(cfg.UserAgent, "", cfg.PageSize, logger)
	case ModePage:
		page := cfg.Page
		if cfg.UserAgent != "" {
			page.UserAgent = cfg.UserAgent
		}
		return NewPageDriver(page, logger)
	case ModeMock:
		return NewMockDriver(cfg.Mock, logger), nil
	default:
		return nil, fmt.Errorf("unknown driver mode: %q (use %q, %q, %q, or %q)",
			cfg.Mode, ModePage, ModeRedditAPI, ModeRedditPublic, ModeMock)
	}
}
