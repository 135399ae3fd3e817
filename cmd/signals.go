package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/trendscope/trendscope/pkg/signals"
)

// signalsCmd implements: trendscope signals
//
// Prints the ranked trading-signal clusters over the recent catalog window.
var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Show ranked trading signals over the current catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		window, err := db.RecentWindow(cmd.Context(), 100)
		if err != nil {
			return err
		}
		clusters := signals.Aggregate(window, time.Now().UTC())
		if len(clusters) == 0 {
			fmt.Println("No signals yet. Run 'trendscope scan' first.")
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Signal", "Members", "Avg score", "Avg price", "Last seen", "Tier"})
		for _, c := range clusters {
			t.AppendRow(table.Row{
				c.Key,
				c.MemberCount,
				fmt.Sprintf("%.1f", c.AverageScore),
				fmt.Sprintf("%.2f", c.AveragePrice),
				c.LastSeen,
				c.Tier,
			})
		}
		t.SetStyle(table.StyleLight)
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(signalsCmd)
}
