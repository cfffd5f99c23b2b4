package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/yukimura/gminor/internal/domain"
	"github.com/yukimura/gminor/internal/store"
	"github.com/yukimura/gminor/internal/usecase"
)

type cursorStatus struct {
	Repository   string `json:"repository"`
	LastSyncedAt string `json:"last_synced_at"`
	LastMergedAt string `json:"last_merged_at,omitempty"`
	TotalSynced  int64  `json:"total_synced"`
}

type statsOutput struct {
	TotalPRs     int64                  `json:"total_prs"`
	Repositories []store.RepositoryStat `json:"repositories"`
	Cursors      []cursorStatus         `json:"cursors"`
	Weekly       *usecase.SeriesSummary `json:"weekly,omitempty"`
	Cache        usecase.CacheStats     `json:"cache"`
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Shows local database and weekly series statistics as JSON",
	Long: `Reports what is stored locally: total merged PRs, a per-repository
breakdown with unique author counts, each repository's sync cursor, and
summary statistics over the recent combined weekly series.`,
	Run: func(cmd *cobra.Command, args []string) {
		app, err := newApp(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer app.close()
		ctx := cmd.Context()
		weeks, _ := cmd.Flags().GetInt("weeks")

		out := statsOutput{}
		if out.TotalPRs, err = app.records.CountPullRequests(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to count records: %v\n", err)
			os.Exit(1)
		}
		if out.Repositories, err = app.records.RepositoryStats(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read repository stats: %v\n", err)
			os.Exit(1)
		}

		for _, repo := range app.cfg.GitHub.Repositories {
			cursor, err := app.records.GetSyncCursor(ctx, repo)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to read sync cursor: %v\n", err)
				os.Exit(1)
			}
			status := cursorStatus{Repository: repo, LastSyncedAt: "never"}
			if cursor != nil {
				status.LastSyncedAt = cursor.LastSyncedAt.Format(time.RFC3339)
				status.LastMergedAt = cursor.LastMergedAt.Format(time.RFC3339)
				status.TotalSynced = cursor.TotalSynced
			}
			out.Cursors = append(out.Cursors, status)
		}

		if len(app.cfg.GitHub.Repositories) > 0 {
			cache, err := app.aggregateCache()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			to := time.Now().UTC()
			series, err := cache.WeeklySeries(ctx, domain.Combined(app.cfg.GitHub.Repositories),
				to.AddDate(0, 0, -7*weeks), to)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to compute weekly series: %v\n", err)
				os.Exit(1)
			}
			summary := usecase.Summarize(series)
			out.Weekly = &summary
			out.Cache = cache.Stats()
		}

		jsonData, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to marshal stats to JSON: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(jsonData))
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().Int("weeks", 12, "Number of recent weeks to summarize")
}
