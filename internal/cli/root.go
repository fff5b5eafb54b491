// Package cli defines the Cobra commands for the tasktide binary.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/msomdec/tasktide/internal/config"
)

var (
	configPath string
	version    = "dev" // set via ldflags at build time
)

var rootCmd = &cobra.Command{
	Use:   "tasktide",
	Short: "Task and time-tracking web service",
	Long: `Tasktide serves the task and time-tracking API, fronting the hosted
data backend with a local cache so reads and writes keep working when
the backend is unreachable.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
