package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trendscope/trendscope/internal/utils"
	"github.com/trendscope/trendscope/pkg/fetch"
	"github.com/trendscope/trendscope/pkg/harvest"
	"github.com/trendscope/trendscope/pkg/sources"
	"github.com/trendscope/trendscope/pkg/storage"
	"github.com/trendscope/trendscope/pkg/vision"
)

// openLockedDB resolves the DB path, takes the cross-process file lock, and
// opens the store. Callers must Unlock and Close.
func openLockedDB(cmd *cobra.Command) (*storage.DB, *utils.DBLock, error) {
	dbPath, _ := cmd.Flags().GetString("dbpath")
	absPath, err := utils.GetAbsDBPath(dbPath)
	if err != nil {
		return nil, nil, err
	}

	lock, err := utils.NewDBLock(absPath)
	if err != nil {
		return nil, nil, err
	}
	if err := lock.Lock(); err != nil {
		return nil, nil, err
	}

	db, err := storage.Open(absPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, nil, err
	}
	return db, lock, nil
}

// openDB opens the store without locking, for read-only commands.
func openDB(cmd *cobra.Command) (*storage.DB, error) {
	dbPath, _ := cmd.Flags().GetString("dbpath")
	absPath, err := utils.GetAbsDBPath(dbPath)
	if err != nil {
		return nil, err
	}
	return storage.Open(absPath)
}

// loadSourceTable loads the configured source file, or the built-in table.
func loadSourceTable() ([]sources.Source, error) {
	return sources.Load(viper.GetString("sources.file"))
}

// buildHarvester wires the retrying fetch client, honoring --proxy.
func buildHarvester(cmd *cobra.Command) (*harvest.Harvester, error) {
	proxy, _ := cmd.Flags().GetString("proxy")
	client, err := fetch.NewClient(proxy)
	if err != nil {
		return nil, fmt.Errorf("building fetch client: %w", err)
	}
	return harvest.New(client, 0), nil
}

// buildClassifier constructs the visual classifier from config. Returns nil
// without error when no API key is configured: scans then persist raw
// listings only.
func buildClassifier() (vision.Classifier, error) {
	apiKey := viper.GetString("vision.api_key")
	if apiKey == "" {
		utils.Log.Warn("No vision API key configured; skipping visual classification.")
		return nil, nil
	}
	return vision.NewClassifier(vision.Config{
		Provider: viper.GetString("vision.provider"),
		APIKey:   apiKey,
		Model:    viper.GetString("vision.model"),
		Endpoint: viper.GetString("vision.endpoint"),
	})
}
