package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/qepting91/review-harvester/internal/domain"
	"github.com/qepting91/review-harvester/internal/storage"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(repairCmd)
}

var repairCmd = &cobra.Command{
	Use:   "repair <destination>...",
	Short: "Removes duplicate and unreadable records from append-only destinations.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := cfg.StorageOptions()
		opts.Logger = logger

		t := newTable(cmd)
		t.AppendHeader(table.Row{"Destination", "Read", "Kept", "Removed"})
		for _, dest := range args {
			sink, err := storage.Open(cmd.Context(), dest, "", opts)
			if err != nil {
				return err
			}
			repairer, ok := sink.(domain.Repairer)
			if !ok {
				sink.Close()
				return fmt.Errorf("%s does not need repair (%s mode)", dest, sink.Mode())
			}
			stats, err := repairer.Repair(cmd.Context())
			sink.Close()
			if err != nil {
				return fmt.Errorf("repair %s: %w", dest, err)
			}
			t.AppendRow(table.Row{dest, stats.Read, stats.Kept, stats.Removed})
		}
		t.Render()
		return nil
	},
}
