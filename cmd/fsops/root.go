package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Populated by the release build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var logLevel string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fsops",
	Short: "Transactional copy, move, and delete for the filesystem",
	Long: `fsops runs file manager style write operations from the command line:
copying, moving, and deleting files and directories with conflict handling,
live progress, cancellation, and rollback of partial work on failure.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newCopyCommand())
	rootCmd.AddCommand(newMoveCommand())
	rootCmd.AddCommand(newDeleteCommand())
	rootCmd.AddCommand(newPlanCommand())
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Print the version number of fsops`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fsops version %s (commit: %s, built: %s)\n", version, commit, date)
	},
}
