package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/trendscope/trendscope/internal/utils"
	"github.com/trendscope/trendscope/pkg/catalog"
	"github.com/trendscope/trendscope/pkg/filter"
	"github.com/trendscope/trendscope/pkg/pipeline"
)

// importFile mirrors the /api/import request body.
type importFile struct {
	SourceID   string `json:"sourceId"`
	Brand      string `json:"brand"`
	MarketZone string `json:"marketZone"`
	Segment    string `json:"segment"`
	Items      []struct {
		Name          string   `json:"name"`
		Price         float64  `json:"price"`
		ImageURL      string   `json:"imageUrl"`
		ProductURL    string   `json:"productUrl"`
		Category      string   `json:"category,omitempty"`
		TrendScore    *float64 `json:"trendScore,omitempty"`
		GrowthPercent *float64 `json:"growthPercent,omitempty"`
	} `json:"items"`
}

// importCmd implements: trendscope import <file.json>
//
// Ingests an externally prepared item list: only URL validity and in-batch
// dedup apply, no harvesting or classification.
var importCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Ingest a pre-scraped item list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var payload importFile
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("parsing %s: %w", args[0], err)
		}

		items := make([]catalog.Candidate, 0, len(payload.Items))
		for _, it := range payload.Items {
			items = append(items, catalog.Candidate{
				Name:          it.Name,
				Price:         it.Price,
				ImageRef:      it.ImageURL,
				ItemURL:       it.ProductURL,
				Category:      it.Category,
				TrendScore:    it.TrendScore,
				GrowthPercent: it.GrowthPercent,
			})
		}

		db, lock, err := openLockedDB(cmd)
		if err != nil {
			return err
		}
		defer lock.Unlock()
		defer db.Close()

		result, err := pipeline.BulkSave(cmd.Context(), pipeline.BulkConfig{
			DB:            db,
			Items:         items,
			SourceBrand:   payload.Brand,
			MarketZone:    payload.MarketZone,
			Segment:       catalog.Segment(payload.Segment),
			FilterOptions: filter.DefaultOptions(),
			Log:           utils.Log,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Saved: %d  Skipped: %d (no URL: %d, invalid URL: %d, duplicate: %d)\n",
			result.Saved,
			result.SkippedNoURL+result.SkippedInvalidURL+result.SkippedDuplicate,
			result.SkippedNoURL, result.SkippedInvalidURL, result.SkippedDuplicate)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
