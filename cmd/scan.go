package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trendscope/trendscope/internal/utils"
	"github.com/trendscope/trendscope/pkg/filter"
	"github.com/trendscope/trendscope/pkg/pipeline"
)

// scanCmd implements: trendscope scan
//
// Runs the full pipeline once: harvest every enabled source, filter,
// classify, ingest, correlate.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Harvest all sources and update the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return fmt.Errorf("unknown command: '%s'. See 'trendscope scan --help'", args[0])
		}

		srcs, err := loadSourceTable()
		if err != nil {
			return err
		}
		if only, _ := cmd.Flags().GetString("source"); only != "" {
			filtered := srcs[:0]
			for _, s := range srcs {
				if s.Name == only {
					filtered = append(filtered, s)
				}
			}
			if len(filtered) == 0 {
				return fmt.Errorf("unknown source: %s", only)
			}
			srcs = filtered
		}

		harvester, err := buildHarvester(cmd)
		if err != nil {
			return err
		}
		classifier, err := buildClassifier()
		if err != nil {
			return err
		}

		db, lock, err := openLockedDB(cmd)
		if err != nil {
			return err
		}
		defer lock.Unlock()
		defer db.Close()

		if err := db.SaveSources(cmd.Context(), srcs); err != nil {
			utils.Log.Warnf("Could not record source table: %v", err)
		}

		sourceConcurrency, _ := cmd.Flags().GetInt("concurrency")
		enrichConcurrency, _ := cmd.Flags().GetInt("enrich-concurrency")

		result, err := pipeline.Scan(cmd.Context(), pipeline.Config{
			Sources:           srcs,
			Harvester:         harvester,
			DB:                db,
			Classifier:        classifier,
			FilterOptions:     filter.DefaultOptions(),
			SourceConcurrency: sourceConcurrency,
			EnrichConcurrency: enrichConcurrency,
			Log:               utils.Log,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Scraped: %d  Analyzed: %d  Saved: %d\n", result.TotalScraped, result.TotalAnalyzed, result.TotalSaved)
		for _, e := range result.Errors {
			utils.Log.Warnf("scan error: %s", e)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().String("source", "", "Only scan the named source")
	scanCmd.Flags().Int("concurrency", 4, "Number of concurrent source fetches")
	scanCmd.Flags().Int("enrich-concurrency", 8, "Number of concurrent classifier calls")
}
