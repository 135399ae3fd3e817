package cmd

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// statsCmd implements: trendscope stats
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show catalog statistics per source",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(cmd.Context())
		if err != nil {
			return err
		}
		if len(stats) == 0 {
			fmt.Println("Catalog is empty. Run 'trendscope scan' first.")
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Brand", "Zone", "Entries", "Avg score", "Alerts", "Avg price"})
		for _, s := range stats {
			t.AppendRow(table.Row{
				s.SourceBrand,
				s.MarketZone,
				s.EntryCount,
				fmt.Sprintf("%.1f", s.AverageScore),
				s.AlertCount,
				fmt.Sprintf("%.2f", s.AveragePrice),
			})
		}
		t.SetStyle(table.StyleLight)
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
