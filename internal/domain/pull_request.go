// Package domain contains the core data structures and domain logic for the application.
package domain

import (
	"strings"
	"time"
)

// PullRequest is one merged pull request as stored locally.
// A record is uniquely identified by (Repository, Number); only merged
// PRs are ever stored, so MergedAt is always set.
type PullRequest struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	Repository string    `gorm:"size:255;not null;uniqueIndex:uq_repo_pr,priority:1;index:idx_pr_repo" json:"repository"`
	Number     int       `gorm:"not null;uniqueIndex:uq_repo_pr,priority:2" json:"number"`
	Author     string    `gorm:"size:255;not null;index:idx_pr_author" json:"author"`
	Title      string    `gorm:"size:1000" json:"title,omitempty"`
	MergedAt   time.Time `gorm:"not null;index:idx_pr_merged_at" json:"merged_at"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (PullRequest) TableName() string { return "pull_requests" }

// SyncCursor tracks incremental sync progress for a single repository.
// LastMergedAt is the high-water mark of fetched data and never moves
// backwards; the next sync uses it as the (inclusive) fetch lower bound.
type SyncCursor struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	Repository   string    `gorm:"size:255;not null;uniqueIndex" json:"repository"`
	LastSyncedAt time.Time `gorm:"not null" json:"last_synced_at"`
	LastMergedAt time.Time `gorm:"not null" json:"last_merged_at"`
	TotalSynced  int64     `gorm:"not null;default:0" json:"total_synced"`
}

func (SyncCursor) TableName() string { return "sync_cursors" }

// WeeklyAggregate is one computed week of the productivity series for a
// (week start, repository-set key, timezone) triple. MovingAverage is nil
// for the first weeks of a series where the trailing window is incomplete.
type WeeklyAggregate struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	SetKey        string    `gorm:"size:255;not null;uniqueIndex:uq_week_set_tz,priority:2;index:idx_agg_set" json:"-"`
	Timezone      string    `gorm:"size:64;not null;uniqueIndex:uq_week_set_tz,priority:3" json:"timezone"`
	WeekStart     time.Time `gorm:"not null;uniqueIndex:uq_week_set_tz,priority:1" json:"week_start"`
	WeekEnd       time.Time `gorm:"not null" json:"week_end"`
	PRCount       int       `gorm:"not null;default:0" json:"pr_count"`
	UniqueAuthors int       `gorm:"not null;default:0" json:"unique_authors"`
	Productivity  float64   `gorm:"not null;default:0" json:"productivity"`
	MovingAverage *float64  `json:"moving_average,omitempty"`
	ComputedAt    time.Time `gorm:"not null" json:"-"`
}

func (WeeklyAggregate) TableName() string { return "weekly_aggregates" }

// NormalizeLogin applies the canonical case-folding for author identity.
// It is applied once at ingestion so that aggregation can compare logins
// byte-for-byte.
func NormalizeLogin(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}

// Productivity computes merged PRs per unique author. Zero-author weeks
// yield 0 rather than a division fault.
func Productivity(prCount, uniqueAuthors int) float64 {
	if uniqueAuthors == 0 {
		return 0
	}
	return float64(prCount) / float64(uniqueAuthors)
}
