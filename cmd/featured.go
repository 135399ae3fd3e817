package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/trendscope/trendscope/pkg/sampler"
	"github.com/trendscope/trendscope/pkg/storage"
)

// featuredCmd implements: trendscope featured
//
// Prints the deterministic monthly selection. The same seed always yields
// the same items in the same order.
var featuredCmd = &cobra.Command{
	Use:   "featured",
	Short: "Show the curated selection for the current seed",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		category, _ := cmd.Flags().GetString("category")
		count, _ := cmd.Flags().GetInt("count")

		seed, _ := cmd.Flags().GetString("seed")
		if seed == "" {
			seed = sampler.MonthlySeed(time.Now().UTC(), category)
		}

		entries, err := db.ListEntries(cmd.Context(), storage.ListOptions{Category: category})
		if err != nil {
			return err
		}

		fmt.Printf("Seed: %s\n", seed)
		for _, e := range sampler.Sample(entries, seed, count) {
			fmt.Printf("%-40s %8.2f  %s\n", e.Name, e.Price, e.SourceURL)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(featuredCmd)

	featuredCmd.Flags().String("seed", "", "Override the selection seed (default: current month)")
	featuredCmd.Flags().String("category", "", "Restrict the selection to one category")
	featuredCmd.Flags().Int("count", 12, "Number of items to select")
}
