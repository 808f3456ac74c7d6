package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/qepting91/review-harvester/internal/collector"
	"github.com/qepting91/review-harvester/internal/domain"
	"github.com/qepting91/review-harvester/internal/harvest"
	"github.com/qepting91/review-harvester/internal/ingest"
	"github.com/qepting91/review-harvester/internal/runner"
	"github.com/qepting91/review-harvester/internal/search"
	"github.com/qepting91/review-harvester/internal/telemetry"
	"github.com/spf13/cobra"
)

var runFlags struct {
	target      string
	targetsFile string
	count       int
	destination string
	driver      string
	baseURL     string
	workers     int
	resume      bool
	identity    string
	index       string
	serve       bool
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.target, "target", "t", "", "single source to harvest (URL, path or subreddit)")
	f.StringVar(&runFlags.targetsFile, "targets", "", "CSV of target,count,destination rows")
	f.IntVarP(&runFlags.count, "count", "n", 0, "records to collect per target")
	f.StringVarP(&runFlags.destination, "destination", "o", "", "where records are written (.ndjson, .json, .db, s3://, gs://)")
	f.StringVar(&runFlags.driver, "driver", "", "mock, page, reddit-api or reddit-public")
	f.StringVar(&runFlags.baseURL, "base-url", "", "base URL for relative page targets")
	f.IntVarP(&runFlags.workers, "workers", "w", 0, "targets harvested in parallel")
	f.BoolVar(&runFlags.resume, "resume", false, "skip records already present in the destination")
	f.StringVar(&runFlags.identity, "identity", "", "explicit or structural record identity")
	f.StringVar(&runFlags.index, "index", "", "also index records into this bleve index")
	f.BoolVar(&runFlags.serve, "serve", false, "serve the dashboard while harvesting and keep serving afterwards")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Harvests one target or every row of a targets CSV.",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyRunFlags(cmd)
		if err := cfg.Validate(); err != nil {
			return err
		}

		shutdown, err := telemetry.SetupTracing(cfg.Tracing, os.Stderr)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logger.Warn("tracing shutdown", "error", err)
			}
		}()

		targets, err := resolveTargets()
		if err != nil {
			return err
		}

		driver, err := collector.NewDriver(cfg.Collector(), logger)
		if err != nil {
			return fmt.Errorf("initialize driver: %w", err)
		}
		logger.Info("driver initialized", "mode", cfg.Driver.Mode)

		storageOpts := cfg.StorageOptions()
		storageOpts.Logger = logger

		var idx *search.Index
		if cfg.Index != "" {
			idx, err = search.Open(cfg.Index, storageOpts.Key, logger)
			if err != nil {
				return err
			}
			defer idx.Close()
		}

		r := runner.New(driver, runner.Options{
			Workers: cfg.Workers,
			Harvest: cfg.HarvestOptions,
			Storage: storageOpts,
			Index:   idx,
			Repair:  cfg.Repair(),
		}, logger)

		var dashErr chan error
		if runFlags.serve {
			dashErr = make(chan error, 1)
			go func() { dashErr <- serveDashboard(cmd, cfg.Dashboard.Addr, cfg.DashboardSource()) }()
		}

		results := r.Run(cmd.Context(), targets)
		renderResults(cmd, targets, results)

		if dashErr != nil {
			logger.Info("harvest complete, dashboard still serving", "addr", cfg.Dashboard.Addr)
			if err := <-dashErr; err != nil {
				logger.Error("dashboard failed", "error", err)
			}
		}

		failed := 0
		for _, res := range results {
			if !res.OK() {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d targets failed", failed, len(results))
		}
		return nil
	},
}

func applyRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("count") {
		cfg.Count = runFlags.count
	}
	if f.Changed("destination") {
		cfg.Destination = runFlags.destination
	}
	if f.Changed("driver") {
		cfg.Driver.Mode = runFlags.driver
	}
	if f.Changed("base-url") {
		cfg.Driver.BaseURL = runFlags.baseURL
	}
	if f.Changed("workers") {
		cfg.Workers = runFlags.workers
	}
	if f.Changed("resume") {
		cfg.Harvest.Resume = runFlags.resume
	}
	if f.Changed("identity") {
		cfg.Harvest.Identity = runFlags.identity
	}
	if f.Changed("index") {
		cfg.Index = runFlags.index
	}
}

func resolveTargets() ([]domain.Target, error) {
	switch {
	case runFlags.targetsFile != "" && runFlags.target != "":
		return nil, errors.New("use either --target or --targets, not both")
	case runFlags.targetsFile != "":
		targets, err := ingest.LoadTargets(runFlags.targetsFile, cfg.Count, cfg.Destination, logger)
		if err != nil {
			return nil, err
		}
		if len(targets) == 0 {
			return nil, fmt.Errorf("no valid targets in %s", runFlags.targetsFile)
		}
		return targets, nil
	case runFlags.target != "":
		return []domain.Target{{Source: runFlags.target, Count: cfg.Count, Destination: cfg.Destination}}, nil
	}
	return nil, errors.New("nothing to harvest: pass --target or --targets")
}

func renderResults(cmd *cobra.Command, targets []domain.Target, results []harvest.Result) {
	t := newTable(cmd)
	t.AppendHeader(table.Row{"Target", "Destination", "Phase", "Requested", "Accepted", "Seen", "Flushed", "Reveals", "Duration", "Error"})
	for i, res := range results {
		errText := ""
		if res.Err != nil {
			errText = res.Err.Error()
		}
		if len(res.Unflushed) > 0 {
			errText = fmt.Sprintf("%s (%d unflushed)", errText, len(res.Unflushed))
		}
		if domain.IsRetryable(res.Err) {
			errText += "; rerun with --resume"
		}
		t.AppendRow(table.Row{
			res.Target,
			targets[i].Destination,
			res.Phase.String(),
			targets[i].Count,
			res.Accepted,
			res.Seen,
			res.Flushed,
			res.Reveals,
			res.Duration.Round(time.Millisecond),
			errText,
		})
	}
	t.Render()
}
