package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/trendscope/trendscope/pkg/storage"
)

// maintainCmd implements: trendscope maintain
//
// Runs the two maintenance stages: score recalculation, then the retention
// cleanup. --dry-run previews the cleanup without mutating the store.
var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Recalculate scores and prune stale entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		retentionDays, _ := cmd.Flags().GetInt("retention-days")
		keepTopN, _ := cmd.Flags().GetInt("keep-top")
		keepAlerts, _ := cmd.Flags().GetBool("keep-alerts")

		db, lock, err := openLockedDB(cmd)
		if err != nil {
			return err
		}
		defer lock.Unlock()
		defer db.Close()

		recalc, err := db.RecalculateScores(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Recalculated %d scores (average %.1f)\n", recalc.Recalculated, recalc.AverageScore)

		cleanup, err := db.Cleanup(cmd.Context(), storage.CleanupOptions{
			Retention:  time.Duration(retentionDays) * 24 * time.Hour,
			KeepAlerts: keepAlerts,
			KeepTopN:   keepTopN,
			DryRun:     dryRun,
		})
		if err != nil {
			return err
		}

		if dryRun {
			fmt.Printf("Dry run: would delete %d entries, keeping %d\n", cleanup.ToDelete, len(cleanup.KeptIDs))
		} else {
			fmt.Printf("Deleted %d entries, kept %d\n", cleanup.Deleted, len(cleanup.KeptIDs))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(maintainCmd)

	maintainCmd.Flags().Bool("dry-run", false, "Preview the cleanup without deleting anything")
	maintainCmd.Flags().Int("retention-days", 7, "Delete entries not sighted within this many days")
	maintainCmd.Flags().Int("keep-top", 3, "Keep the top-N scorers of each category/zone group")
	maintainCmd.Flags().Bool("keep-alerts", true, "Keep global trend alerts regardless of age")
}
