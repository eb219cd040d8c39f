package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"snitch/internal/config"
	"snitch/internal/logger"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "snitch",
	Short: "Snitch is a community newsletter bot that turns chat drama into daily news.",
	Long: `Snitch watches a community's conversations, scores them for
controversy, and writes a daily persona-voiced newsletter about the most
interesting threads. It also answers on-demand commands for breaking news,
leaks, and humorous fact-checks.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.snitch.yaml)")
}

// initConfig loads configuration and initializes logging before any
// subcommand runs.
func initConfig() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	level := cfg.Logging.Level
	if cfg.App.Debug {
		level = "debug"
	}
	logger.Init(level, cfg.Logging.Format)
}
