package commands

import (
	"fmt"

	"github.com/qepting91/review-harvester/internal/dashboard"
	"github.com/qepting91/review-harvester/internal/domain"
	"github.com/qepting91/review-harvester/internal/storage"
	"github.com/spf13/cobra"
)

var serveFlags struct {
	addr   string
	source string
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "", "listen address (defaults to dashboard.addr or $PORT)")
	serveCmd.Flags().StringVar(&serveFlags.source, "source", "", "destination to chart (defaults to dashboard.source)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves charts over a destination and the /metrics endpoint.",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, source := cfg.Dashboard.Addr, cfg.DashboardSource()
		if serveFlags.addr != "" {
			addr = serveFlags.addr
		}
		if serveFlags.source != "" {
			source = serveFlags.source
		}

		return serveDashboard(cmd, addr, source)
	},
}

// serveDashboard charts source on addr until the command context ends.
func serveDashboard(cmd *cobra.Command, addr, source string) error {
	opts := cfg.StorageOptions()
	opts.Logger = logger
	sink, err := storage.Open(cmd.Context(), source, "", opts)
	if err != nil {
		return err
	}
	defer sink.Close()

	loader, ok := sink.(domain.Loader)
	if !ok {
		return fmt.Errorf("%s cannot be read back", source)
	}
	return dashboard.New(loader, logger).ListenAndServe(cmd.Context(), addr)
}
