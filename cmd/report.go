package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/yukimura/gminor/internal/domain"
	"github.com/yukimura/gminor/internal/usecase"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generates the weekly productivity report as JSON",
	Long: `Computes the weekly productivity series (merged PRs per unique
author, with a trailing moving average) from locally stored records and
outputs a JSON report. By default all configured repositories are
aggregated into one combined series; --mode separate emits one series
per repository and --repo narrows to a single repository.`,
	Run: func(cmd *cobra.Command, args []string) {
		app, err := newApp(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer app.close()

		repo, _ := cmd.Flags().GetString("repo")
		mode, _ := cmd.Flags().GetString("mode")
		weeks, _ := cmd.Flags().GetInt("weeks")
		fromStr, _ := cmd.Flags().GetString("from")
		toStr, _ := cmd.Flags().GetString("to")
		output, _ := cmd.Flags().GetString("output")

		if mode == "" {
			mode = app.cfg.Report.Mode
		}
		if mode != usecase.ModeCombined && mode != usecase.ModeSeparate {
			fmt.Fprintf(os.Stderr, "Error: invalid --mode %q, want combined or separate\n", mode)
			os.Exit(1)
		}
		repos := app.cfg.GitHub.Repositories
		if repo != "" {
			repos = []string{repo}
			mode = usecase.ModeSingle
		}
		if len(repos) == 0 {
			fmt.Fprintln(os.Stderr, "Error: no repositories configured; set github.repositories or pass --repo")
			os.Exit(1)
		}

		to := time.Now().UTC()
		if toStr != "" {
			if to, err = parseDate(toStr); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}
		from := to.AddDate(0, 0, -7*weeks)
		if fromStr != "" {
			if from, err = parseDate(fromStr); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		cache, err := app.aggregateCache()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		builder := usecase.NewReportBuilder(cache)
		var report *usecase.Report
		switch mode {
		case usecase.ModeSeparate:
			report, err = builder.BuildSeparate(cmd.Context(), repos, from, to)
		case usecase.ModeCombined:
			report, err = builder.Build(cmd.Context(), domain.Combined(repos), from, to)
		default:
			report, err = builder.Build(cmd.Context(), domain.SingleRepo(repo), from, to)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to build report: %v\n", err)
			os.Exit(1)
		}

		jsonData, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to marshal report to JSON: %v\n", err)
			os.Exit(1)
		}

		if output != "" {
			if err := os.WriteFile(output, append(jsonData, '\n'), 0o644); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to write report: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Report written to %s\n", output)
			return
		}
		fmt.Println(string(jsonData))
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringP("repo", "r", "", "Limit the report to a single repository (owner/name)")
	reportCmd.Flags().String("mode", "", "Report mode: combined or separate (default from config)")
	reportCmd.Flags().Int("weeks", 12, "Number of weeks to cover when --from is not given")
	reportCmd.Flags().String("from", "", "Start date (YYYY-MM-DD)")
	reportCmd.Flags().String("to", "", "End date (YYYY-MM-DD, default now)")
	reportCmd.Flags().StringP("output", "o", "", "Write the report to a file instead of stdout")
}
