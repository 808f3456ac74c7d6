// Package config loads harvester settings from layered json5 files, the
// environment, and defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/qepting91/review-harvester/internal/collector"
	"github.com/qepting91/review-harvester/internal/harvest"
	"github.com/qepting91/review-harvester/internal/storage"
	"github.com/qepting91/review-harvester/internal/telemetry"
)

// Duration is a time.ParseDuration string such as "500ms" or "2s".
type Duration string

func durationOf(d time.Duration) Duration { return Duration(d.String()) }

// Std parses d; empty or invalid values yield zero. Validate reports the
// invalid ones.
func (d Duration) Std() time.Duration {
	v, _ := time.ParseDuration(string(d))
	return v
}

func (d Duration) check(name string) error {
	if d == "" {
		return nil
	}
	if _, err := time.ParseDuration(string(d)); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

type Config struct {
	Driver Driver `json:"driver"`

	// Destination is used for single-target runs and CSV rows without one.
	Destination string `json:"destination"`
	// Count is the default N per target.
	Count int `json:"count"`
	// Index, when set, tees every run into a bleve index at this path.
	Index string `json:"index"`

	Workers        int   `json:"workers"`
	RepairOnFinish *bool `json:"repair_on_finish"`

	Harvest   Harvest                 `json:"harvest"`
	Storage   Storage                 `json:"storage"`
	Log       Log                     `json:"log"`
	Tracing   telemetry.TracingConfig `json:"tracing"`
	Dashboard Dashboard               `json:"dashboard"`
}

type Driver struct {
	Mode      string `json:"mode"`
	UserAgent string `json:"user_agent"`
	PageSize  int    `json:"page_size"`

	BaseURL           string              `json:"base_url"`
	SortParam         string              `json:"sort_param"`
	Sort              string              `json:"sort"`
	RequestsPerSecond float64             `json:"requests_per_second"`
	Timeout           Duration            `json:"timeout"`
	Selectors         collector.Selectors `json:"selectors"`

	Reddit Reddit `json:"reddit"`
	Mock   Mock   `json:"mock"`
}

type Reddit struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Username     string `json:"username"`
	Password     string `json:"password"`
}

type Mock struct {
	Total          int      `json:"total"`
	Initial        int      `json:"initial"`
	Step           int      `json:"step"`
	DuplicateEvery int      `json:"duplicate_every"`
	MalformedEvery int      `json:"malformed_every"`
	Latency        Duration `json:"latency"`
	Seed           int64    `json:"seed"`
}

type Harvest struct {
	BatchSize       int      `json:"batch_size"`
	FlushThreshold  int      `json:"flush_threshold"`
	StagnationLimit int      `json:"stagnation_limit"`
	SettleInterval  Duration `json:"settle_interval"`
	RevealTimeout   Duration `json:"reveal_timeout"`
	RevealRetries   *int     `json:"reveal_retries"`
	FlushRetries    *int     `json:"flush_retries"`
	FlushBackoff    Duration `json:"flush_backoff"`
	Identity        string   `json:"identity"`
	Resume          bool     `json:"resume"`
}

type Storage struct {
	S3Region           string `json:"s3_region"`
	S3Endpoint         string `json:"s3_endpoint"`
	GCSCredentialsFile string `json:"gcs_credentials_file"`
}

type Log struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type Dashboard struct {
	Addr string `json:"addr"`
	// Source is the Loader-capable destination the dashboard reads. Empty
	// means the configured destination.
	Source string `json:"source"`
}

// Default returns the built-in settings.
func Default() Config {
	h := harvest.DefaultOptions(0)
	repair := true
	page := collector.DefaultPageConfig()
	mock := collector.DefaultMockConfig()

	return Config{
		Driver: Driver{
			Mode:              collector.ModeMock,
			UserAgent:         page.UserAgent,
			PageSize:          25,
			SortParam:         page.SortParam,
			Sort:              page.Sort,
			RequestsPerSecond: page.RequestsPerSecond,
			Timeout:           durationOf(page.Timeout),
			Selectors:         page.Selectors,
			Mock: Mock{
				Total:   mock.Total,
				Initial: mock.Initial,
				Step:    mock.Step,
				Latency: durationOf(mock.Latency),
				Seed:    mock.Seed,
			},
		},
		Destination:    "data/reviews.ndjson",
		Count:          1000,
		Workers:        4,
		RepairOnFinish: &repair,
		Harvest: Harvest{
			BatchSize:       h.BatchSize,
			FlushThreshold:  h.FlushThreshold,
			StagnationLimit: h.StagnationLimit,
			SettleInterval:  durationOf(h.SettleInterval),
			RevealTimeout:   durationOf(h.RevealTimeout),
			RevealRetries:   &h.RevealRetries,
			FlushRetries:    &h.FlushRetries,
			FlushBackoff:    durationOf(h.FlushBackoff),
			Identity:        string(h.Identity),
		},
		Log: Log{Level: "info", Format: "json"},
		Tracing: telemetry.TracingConfig{
			ServiceName:  "review-harvester",
			SamplingRate: 1,
		},
		Dashboard: Dashboard{Addr: ":8080"},
	}
}

// Load reads name and name.local (see ReadConfig), applies environment
// overrides, and fills everything left unset from Default. A missing file is
// not an error.
func Load(name string) (Config, error) {
	cfg, err := ReadConfig[Config](name)
	if err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read %s: %w", name, err)
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	// Pointer fields set in a file, even to zero, win over the defaults.
	if err := mergo.Merge(&cfg, Default(), mergo.WithoutDereference); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays HARVEST_* variables, plus the REDDIT_* and PORT names the
// collector has always read.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("HARVEST_DRIVER", &cfg.Driver.Mode)
	str("HARVEST_USER_AGENT", &cfg.Driver.UserAgent)
	str("REDDIT_USER_AGENT", &cfg.Driver.UserAgent)
	str("HARVEST_BASE_URL", &cfg.Driver.BaseURL)
	str("REDDIT_CLIENT_ID", &cfg.Driver.Reddit.ClientID)
	str("REDDIT_CLIENT_SECRET", &cfg.Driver.Reddit.ClientSecret)
	str("REDDIT_USERNAME", &cfg.Driver.Reddit.Username)
	str("REDDIT_PASSWORD", &cfg.Driver.Reddit.Password)
	str("HARVEST_DESTINATION", &cfg.Destination)
	str("HARVEST_INDEX", &cfg.Index)
	str("HARVEST_IDENTITY", &cfg.Harvest.Identity)
	str("HARVEST_LOG_LEVEL", &cfg.Log.Level)
	str("HARVEST_LOG_FORMAT", &cfg.Log.Format)
	str("HARVEST_S3_REGION", &cfg.Storage.S3Region)
	str("HARVEST_S3_ENDPOINT", &cfg.Storage.S3Endpoint)
	str("HARVEST_DASHBOARD_SOURCE", &cfg.Dashboard.Source)
	if port, ok := lookup("PORT"); ok && port != "" {
		cfg.Dashboard.Addr = ":" + port
	}

	if err := num("HARVEST_COUNT", &cfg.Count); err != nil {
		return err
	}
	if err := num("HARVEST_WORKERS", &cfg.Workers); err != nil {
		return err
	}
	if v, ok := lookup("HARVEST_RESUME"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("HARVEST_RESUME: %w", err)
		}
		cfg.Harvest.Resume = b
	}
	if v, ok := lookup("HARVEST_TRACING"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("HARVEST_TRACING: %w", err)
		}
		cfg.Tracing.Enabled = b
	}
	return nil
}

// HarvestOptions converts the harvest section into run options for count
// records.
func (c Config) HarvestOptions(count int) harvest.Options {
	h := c.Harvest
	opts := harvest.Options{
		Target:          count,
		BatchSize:       h.BatchSize,
		FlushThreshold:  h.FlushThreshold,
		StagnationLimit: h.StagnationLimit,
		SettleInterval:  h.SettleInterval.Std(),
		RevealTimeout:   h.RevealTimeout.Std(),
		FlushBackoff:    h.FlushBackoff.Std(),
		Identity:        harvest.IdentityMode(strings.ToLower(h.Identity)),
		Resume:          h.Resume,
	}
	if h.RevealRetries != nil {
		opts.RevealRetries = *h.RevealRetries
	}
	if h.FlushRetries != nil {
		opts.FlushRetries = *h.FlushRetries
	}
	return opts
}

func (c Config) Collector() collector.Config {
	d := c.Driver
	return collector.Config{
		Mode:      d.Mode,
		UserAgent: d.UserAgent,
		PageSize:  d.PageSize,
		Reddit: collector.RedditCredentials{
			ID:       d.Reddit.ClientID,
			Secret:   d.Reddit.ClientSecret,
			Username: d.Reddit.Username,
			Password: d.Reddit.Password,
		},
		Page: collector.PageConfig{
			BaseURL:           d.BaseURL,
			SortParam:         d.SortParam,
			Sort:              d.Sort,
			UserAgent:         d.UserAgent,
			RequestsPerSecond: d.RequestsPerSecond,
			Timeout:           d.Timeout.Std(),
			Selectors:         d.Selectors,
		},
		Mock: collector.MockConfig{
			Total:          d.Mock.Total,
			Initial:        d.Mock.Initial,
			Step:           d.Mock.Step,
			DuplicateEvery: d.Mock.DuplicateEvery,
			MalformedEvery: d.Mock.MalformedEvery,
			Latency:        d.Mock.Latency.Std(),
			Seed:           d.Mock.Seed,
		},
	}
}

func (c Config) StorageOptions() storage.Options {
	return storage.Options{
		Key:                harvest.KeyFunc(harvest.IdentityMode(strings.ToLower(c.Harvest.Identity))),
		S3Region:           c.Storage.S3Region,
		S3Endpoint:         c.Storage.S3Endpoint,
		GCSCredentialsFile: c.Storage.GCSCredentialsFile,
	}
}

// DashboardSource is the destination the dashboard charts.
func (c Config) DashboardSource() string {
	if c.Dashboard.Source != "" {
		return c.Dashboard.Source
	}
	return c.Destination
}

func (c Config) Repair() bool {
	return c.RepairOnFinish == nil || *c.RepairOnFinish
}

// Validate checks the settings that every command depends on.
func (c Config) Validate() error {
	switch c.Driver.Mode {
	case collector.ModeMock, collector.ModePage, collector.ModeRedditAPI, collector.ModeRedditPublic:
	default:
		return fmt.Errorf("unknown driver mode %q", c.Driver.Mode)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	for name, d := range map[string]Duration{
		"driver.timeout":          c.Driver.Timeout,
		"driver.mock.latency":     c.Driver.Mock.Latency,
		"harvest.settle_interval": c.Harvest.SettleInterval,
		"harvest.reveal_timeout":  c.Harvest.RevealTimeout,
		"harvest.flush_backoff":   c.Harvest.FlushBackoff,
	} {
		if err := d.check(name); err != nil {
			return err
		}
	}
	if c.Count <= 0 {
		return fmt.Errorf("count must be positive, got %d", c.Count)
	}
	if err := c.HarvestOptions(c.Count).Validate(); err != nil {
		return fmt.Errorf("harvest: %w", err)
	}
	return nil
}
