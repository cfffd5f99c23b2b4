// Package cmd contains all the CLI commands for the application,
// built using the Cobra library.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/yukimura/gminor/internal/config"
	"github.com/yukimura/gminor/internal/gateway"
	"github.com/yukimura/gminor/internal/store"
	"github.com/yukimura/gminor/internal/usecase"
	"github.com/yukimura/gminor/internal/week"
)

var rootCmd = &cobra.Command{
	Use:   "gminor",
	Short: "Incremental GitHub PR sync and weekly productivity reports.",
	Long: `gminor incrementally syncs merged pull request history from GitHub
repositories into a local database and derives a weekly productivity
series (merged PRs per unique author, with a trailing moving average).`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")
}

// app bundles the dependencies shared by every command: configuration,
// logger, and the open database.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *gorm.DB
	records *store.RecordStore
}

func newApp(cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := config.SetupLogger(cfg.Log.Level, verbose)

	db, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		records: store.NewRecordStore(db),
	}, nil
}

func (a *app) close() {
	if err := store.Close(a.db); err != nil {
		a.logger.Warn("closing database", "error", err)
	}
}

func (a *app) resolver() (*week.Resolver, error) {
	startDay, err := week.ParseWeekday(a.cfg.Analytics.WeekStart)
	if err != nil {
		return nil, err
	}
	return week.NewResolver(a.cfg.Analytics.Timezone, startDay)
}

func (a *app) aggregateCache() (*usecase.AggregateCache, error) {
	resolver, err := a.resolver()
	if err != nil {
		return nil, err
	}
	aggregator := usecase.NewAggregator(a.records, resolver,
		a.cfg.Analytics.MovingAverageWeeks, a.cfg.Analytics.QueryChunkSize, a.logger)
	return usecase.NewAggregateCache(aggregator, a.records, a.cfg.Analytics.CacheTTL, a.logger), nil
}

func (a *app) coordinator() (*usecase.Coordinator, error) {
	if a.cfg.GitHub.Token == "" {
		return nil, fmt.Errorf("no GitHub token configured; set github.token or GITHUB_TOKEN")
	}
	if len(a.cfg.GitHub.Repositories) == 0 {
		return nil, fmt.Errorf("no repositories configured; set github.repositories")
	}

	fetcher, err := gateway.NewGitHubGateway(a.cfg.GitHub.Token, a.cfg.GitHub.PerPage, a.logger)
	if err != nil {
		return nil, err
	}
	manager := usecase.NewSyncManager(fetcher, a.records, usecase.SyncConfig{
		InitialLookbackDays: a.cfg.Sync.InitialLookbackDays,
		RateLimitBuffer:     a.cfg.Sync.RateLimitBuffer,
		MaxRetries:          a.cfg.Sync.MaxRetries,
		PageTimeout:         a.cfg.Sync.PageTimeout,
	}, a.logger)

	cache, err := a.aggregateCache()
	if err != nil {
		return nil, err
	}
	return usecase.NewCoordinator(manager, cache, a.cfg.Sync.MaxWorkers, a.logger), nil
}

const dateLayout = "2006-01-02"

func parseDate(value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return t, nil
}

func printSyncReport(report *usecase.SyncReport) {
	for _, res := range report.Results {
		if res.Err != nil {
			fmt.Fprintf(os.Stderr, "  %-40s FAILED: %v\n", res.Repository, res.Err)
			continue
		}
		fmt.Printf("  %-40s %d fetched, %d new (%.1fs)\n",
			res.Repository, res.RecordsFetched, res.RecordsAdded, res.Duration.Seconds())
	}
	fmt.Printf("Synced %d/%d repositories, %d new records in %.1fs (%.1fx speedup)\n",
		report.Succeeded, report.Succeeded+report.Failed, report.TotalRecords,
		report.Duration.Seconds(), report.Speedup)
}
