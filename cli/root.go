// Package cli provides the plotq command-line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jupark12/go-plot-queue/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	cfg         config.Config
	logger      *slog.Logger
	closeLogger = func() error { return nil }
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "plotq",
	Short: "Asynchronous plotting job service",
	Long: `plotq stores an uploaded tabular dataset and renders scatter or bar
charts of two of its fields in the background.

Clients submit plot jobs over HTTP, poll their status and download the PNG.
The API and the worker share state only through the store, so they can run
in one process (serve) or separately (api, worker) against Redis.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.LoadDotEnv()
		cfg = config.Load()

		opts := cfg.LogOptions(cmd.Name())
		if verbose {
			opts.Level = slog.LevelDebug
		}
		logger, closeLogger = config.NewLogger(opts)
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if err := closeLogger(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(historyCmd)
}
