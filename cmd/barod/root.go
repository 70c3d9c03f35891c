package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	disable1    bool
	disable2    bool
	disable3    bool
	debugFlag   bool
	levelFlag   string
	logFileFlag string
)

var rootCmd = &cobra.Command{
	Use:   "barod",
	Short: "Barometric telemetry daemon",
	Long: "barod samples up to three barometric pressure sensors on a fixed schedule,\n" +
		"keeps a bounded history per sensor, posts hourly trend alerts to Slack and\n" +
		"relays history dumps to the export sink, the reporting store and the live feed.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "path to configuration YAML (defaults apply when empty)")
	rootCmd.Flags().BoolVar(&disable1, "s1", false, "disable sensor 1")
	rootCmd.Flags().BoolVar(&disable2, "s2", false, "disable sensor 2")
	rootCmd.Flags().BoolVar(&disable3, "s3", false, "disable sensor 3")
	rootCmd.Flags().BoolVarP(&debugFlag, "debug", "d", false, "force debug logging")
	rootCmd.Flags().StringVarP(&levelFlag, "level", "l", "", "log level (trace|debug|info|warn|error)")
	rootCmd.Flags().StringVar(&logFileFlag, "log-file", "", "also write logs to this file")
}
