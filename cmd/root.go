package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/trendscope/trendscope/internal/utils"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	LOGO = `	 _                     _
	| |_ _ __ ___ _ __   __| |___  ___ ___  _ __   ___
	| __| '__/ _ \ '_ \ / _' / __|/ __/ _ \| '_ \ / _ \
	| |_| | |  __/ | | | (_| \__ \ (_| (_) | |_) |  __/
	 \__|_|  \___|_| |_|\__,_|___/\___\___/| .__/ \___|
	                                       |_|

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "trendscope",
	Short: "A trend intelligence pipeline for fashion retail.",
	Long: LOGO + `trendscope harvests product listings from fashion retailers across market zones,
classifies them visually, and correlates cross-market sightings into global trend alerts.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.trendscope.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("proxy", "", "", "HTTP Proxy (Useful for debugging. Example: http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("dbpath", "", "Path to SQLite DB file (default: ~/.config/trendscope/trendscope.sqlite)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".trendscope")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.trendscope.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	// Set default empty values for all keys
	viper.SetDefault("vision.provider", "openai")
	viper.SetDefault("vision.api_key", "")
	viper.SetDefault("vision.model", "")
	viper.SetDefault("vision.endpoint", "")
	viper.SetDefault("maintenance.secret", "")
	viper.SetDefault("sources.file", "")

	_ = viper.BindEnv("vision.api_key", "OPENAI_API_KEY")

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}
