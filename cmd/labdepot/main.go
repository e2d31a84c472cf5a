package main

import (
	"fmt"
	"os"

	"github.com/labdepot/labdepot/internal/services"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configDir string

	rootCmd := &cobra.Command{
		Use:           "labdepot",
		Short:         "Lab inventory API and low-stock notifier",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "config", "Directory holding config.yml and config.local.yml")

	var noWatcher bool
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API and the low-stock watcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configDir, services.Options{RunAPI: true, RunWatcher: !noWatcher})
		},
	}
	serveCmd.Flags().BoolVar(&noWatcher, "no-watcher", false, "Serve the API only")

	var reset bool
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Run only the low-stock watcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configDir, services.Options{RunWatcher: true, ResetCheckpoint: reset})
		},
	}
	watchCmd.Flags().BoolVar(&reset, "reset-checkpoint", false, "Forget the stored resume token and start from now")

	indexesCmd := &cobra.Command{
		Use:   "indexes",
		Short: "Create the storage indexes and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ensureIndexes(cmd.Context(), configDir)
		},
	}

	rootCmd.AddCommand(serveCmd, watchCmd, indexesCmd)
	return rootCmd
}
