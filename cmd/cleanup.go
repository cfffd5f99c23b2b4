package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Deletes stored PRs merged before a cutoff date",
	Long: `Deletes locally stored pull request records merged before the given
date and drops all cached weekly aggregates, since any cached series may
reference the removed rows. Sync cursors are left untouched.`,
	Run: func(cmd *cobra.Command, args []string) {
		beforeStr, _ := cmd.Flags().GetString("before")
		yes, _ := cmd.Flags().GetBool("yes")

		cutoff, err := parseDate(beforeStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if !yes {
			fmt.Printf("Delete all records merged before %s? [y/N] ", beforeStr)
			line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
				fmt.Println("Aborted.")
				return
			}
		}

		app, err := newApp(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer app.close()
		ctx := cmd.Context()

		deleted, err := app.records.DeleteBefore(ctx, cutoff)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to delete records: %v\n", err)
			os.Exit(1)
		}

		// The aggregate rows are a derived view; drop them all rather
		// than guessing which set keys could reference deleted records.
		if _, err := app.records.ClearWeeklySeries(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to drop cached aggregates: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Deleted %d records merged before %s\n", deleted, beforeStr)
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().String("before", "", "Cutoff date (YYYY-MM-DD, required)")
	cleanupCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	cleanupCmd.MarkFlagRequired("before")
}
