package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yukimura/gminor/internal/usecase"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Performs the initial sync for all configured repositories",
	Long: `Fetches merged pull request history for every configured repository,
starting the given number of days back, and stores it locally. Safe to
re-run: records already stored are skipped and cursors only advance.`,
	Run: func(cmd *cobra.Command, args []string) {
		days, _ := cmd.Flags().GetInt("days")
		runSync(cmd, usecase.SyncOptions{LookbackDays: days})
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Incrementally syncs new merged PRs since the last sync",
	Long: `Fetches only merged pull requests newer than each repository's sync
cursor. Repositories never synced before fall back to the configured
initial lookback.`,
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		runSync(cmd, usecase.SyncOptions{ForceUpdate: force})
	},
}

func runSync(cmd *cobra.Command, opts usecase.SyncOptions) {
	app, err := newApp(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer app.close()

	coordinator, err := app.coordinator()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	report := coordinator.SyncAll(cmd.Context(), app.cfg.GitHub.Repositories, opts)
	printSyncReport(report)
	if report.AllFailed() {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(updateCmd)
	initCmd.Flags().Int("days", 0, "Days of history to backfill (default from config)")
	updateCmd.Flags().Bool("force", false, "Refresh titles of already-stored records")
}
