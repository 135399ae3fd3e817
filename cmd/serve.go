package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trendscope/trendscope/internal/server"
	"github.com/trendscope/trendscope/pkg/filter"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the trendscope HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		srcs, err := loadSourceTable()
		if err != nil {
			return err
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

		listenAddr, _ := cmd.Flags().GetString("listen")
		sourceConcurrency, _ := cmd.Flags().GetInt("concurrency")
		enrichConcurrency, _ := cmd.Flags().GetInt("enrich-concurrency")

		s := &server.Server{
			DB:                db,
			Sources:           srcs,
			Harvester:         harvester,
			Classifier:        classifier,
			FilterOptions:     filter.DefaultOptions(),
			Secret:            viper.GetString("maintenance.secret"),
			SourceConcurrency: sourceConcurrency,
			EnrichConcurrency: enrichConcurrency,
		}
		return s.Start(listenAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().Int("concurrency", 4, "Number of concurrent source fetches per scan")
	serveCmd.Flags().Int("enrich-concurrency", 8, "Number of concurrent classifier calls per scan")
}
