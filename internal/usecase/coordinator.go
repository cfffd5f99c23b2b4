package usecase

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Invalidator drops cached aggregates for a repository after its sync
// commits new data.
type Invalidator interface {
	Invalidate(ctx context.Context, repository string) error
}

// SyncReport is the aggregate outcome of a multi-repository sync. Per
// repository it records the terminal state and error detail; failures
// are collected, never propagated as a whole-batch failure.
type SyncReport struct {
	Results            []RepoSyncResult `json:"results"`
	Succeeded          int              `json:"succeeded"`
	Failed             int              `json:"failed"`
	TotalRecords       int64            `json:"total_records"`
	Duration           time.Duration    `json:"duration"`
	SequentialEstimate time.Duration    `json:"sequential_estimate"`
	Speedup            float64          `json:"speedup"`
}

// AllFailed reports whether no repository synced successfully, letting a
// caller distinguish "3 of 5 synced" from total failure.
func (r *SyncReport) AllFailed() bool {
	return len(r.Results) > 0 && r.Succeeded == 0
}

// Coordinator fans independent repository syncs out across a bounded
// worker pool. One repository's failure never aborts or blocks the
// others; ordering is only guaranteed within a single repository's
// batch-then-cursor sequence, which the SyncManager owns.
type Coordinator struct {
	manager     *SyncManager
	invalidator Invalidator
	maxWorkers  int
	logger      *slog.Logger
}

// NewCoordinator creates a coordinator with the given concurrency
// ceiling. The invalidator may be nil when no cache is wired.
func NewCoordinator(manager *SyncManager, invalidator Invalidator, maxWorkers int, logger *slog.Logger) *Coordinator {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &Coordinator{
		manager:     manager,
		invalidator: invalidator,
		maxWorkers:  maxWorkers,
		logger:      logger,
	}
}

// SyncAll syncs every repository and collects per-repository outcomes
// into a report. Workers write only their own slot, so no locking is
// needed beyond the store's own serialization.
func (c *Coordinator) SyncAll(ctx context.Context, repositories []string, opts SyncOptions) *SyncReport {
	started := time.Now()
	report := &SyncReport{Results: make([]RepoSyncResult, len(repositories))}
	if len(repositories) == 0 {
		report.Speedup = 1
		return report
	}

	c.logger.Info("starting parallel sync",
		"repositories", len(repositories), "max_workers", c.maxWorkers)

	eg := &errgroup.Group{}
	eg.SetLimit(c.maxWorkers)
	for i, repository := range repositories {
		eg.Go(func() error {
			report.Results[i] = c.manager.SyncRepository(ctx, repository, opts)
			return nil
		})
	}
	// Workers never return errors; failures live in their result slots.
	_ = eg.Wait()

	for _, res := range report.Results {
		report.SequentialEstimate += res.Duration
		if res.State == StateDone {
			report.Succeeded++
			report.TotalRecords += res.RecordsAdded
			c.invalidate(ctx, res.Repository)
		} else {
			report.Failed++
		}
	}

	report.Duration = time.Since(started)
	if report.Duration > 0 {
		report.Speedup = float64(report.SequentialEstimate) / float64(report.Duration)
	}

	c.logger.Info("parallel sync completed",
		"succeeded", report.Succeeded, "failed", report.Failed,
		"records", report.TotalRecords, "duration", report.Duration,
		"speedup", report.Speedup)
	return report
}

func (c *Coordinator) invalidate(ctx context.Context, repository string) {
	if c.invalidator == nil {
		return
	}
	if err := c.invalidator.Invalidate(ctx, repository); err != nil {
		c.logger.Warn("cache invalidation failed", "repository", repository, "error", err)
	}
}
