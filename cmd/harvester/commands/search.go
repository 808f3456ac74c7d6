package commands

import (
	"errors"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/qepting91/review-harvester/internal/search"
	"github.com/spf13/cobra"
)

var searchFlags struct {
	index string
	limit int
}

func init() {
	searchCmd.Flags().StringVar(&searchFlags.index, "index", "", "bleve index path (defaults to the configured index)")
	searchCmd.Flags().IntVar(&searchFlags.limit, "limit", 20, "maximum hits")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: `Queries the review index, e.g. "crash +Rating:<=2".`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Index
		if searchFlags.index != "" {
			path = searchFlags.index
		}
		if path == "" {
			return errors.New("no index configured; pass --index")
		}

		idx, err := search.Open(path, cfg.StorageOptions().Key, logger)
		if err != nil {
			return err
		}
		defer idx.Close()

		hits, err := idx.Search(strings.Join(args, " "), searchFlags.limit)
		if err != nil {
			return err
		}

		t := newTable(cmd)
		t.AppendHeader(table.Row{"Score", "Target", "Author", "Rating", "Date", "Text"})
		t.SetColumnConfigs([]table.ColumnConfig{
			{Name: "Text", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
		})
		for _, h := range hits {
			t.AppendRow(table.Row{h.Score, h.Target, h.Author, h.Rating, h.Date, h.Text})
		}
		t.AppendFooter(table.Row{"", "", "", "", "hits", len(hits)})
		t.Render()
		return nil
	},
}
