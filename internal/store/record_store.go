package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/yukimura/gminor/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const insertBatchSize = 100

// RecordStore owns the persisted pull-request and sync-cursor rows and
// the weekly-aggregate rows written by the aggregate cache. All writes
// are transactional: a batch either commits fully or not at all.
type RecordStore struct {
	db *gorm.DB
}

// NewRecordStore creates a store over an opened database.
func NewRecordStore(db *gorm.DB) *RecordStore {
	return &RecordStore{db: db}
}

func storageErr(op string, err error) error {
	return &domain.StorageError{Op: op, Err: err}
}

// UpsertPullRequests inserts records that are not already present, keyed
// by (repository, number). Existing rows are left untouched unless force
// is set, in which case the title is refreshed. Safe to call repeatedly
// with overlapping batches; returns the number of rows actually inserted
// or updated.
func (s *RecordStore) UpsertPullRequests(ctx context.Context, records []domain.PullRequest, force bool) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	onConflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "repository"}, {Name: "number"}},
		DoNothing: true,
	}
	if force {
		onConflict.DoNothing = false
		onConflict.DoUpdates = clause.AssignmentColumns([]string{"title"})
	}

	var affected int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(records); start += insertBatchSize {
			end := min(start+insertBatchSize, len(records))
			batch := records[start:end]
			res := tx.Clauses(onConflict).Create(&batch)
			if res.Error != nil {
				return res.Error
			}
			affected += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, storageErr("upsert pull requests", err)
	}

	slog.Debug("upserted pull requests", "batch", len(records), "affected", affected)
	return affected, nil
}

// GetSyncCursor returns the cursor for a repository, or nil when the
// repository has never been synced.
func (s *RecordStore) GetSyncCursor(ctx context.Context, repository string) (*domain.SyncCursor, error) {
	var cursor domain.SyncCursor
	err := s.db.WithContext(ctx).Where("repository = ?", repository).First(&cursor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storageErr("get sync cursor", err)
	}
	return &cursor, nil
}

// UpdateSyncCursor advances the cursor for a repository in one atomic
// unit. The merge-timestamp high-water mark never moves backwards even if
// a caller passes an older value.
func (s *RecordStore) UpdateSyncCursor(ctx context.Context, repository string, lastSyncedAt, lastMergedAt time.Time, added int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cursor domain.SyncCursor
		err := tx.Where("repository = ?", repository).First(&cursor).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			cursor = domain.SyncCursor{
				Repository:   repository,
				LastSyncedAt: lastSyncedAt.UTC(),
				LastMergedAt: lastMergedAt.UTC(),
				TotalSynced:  added,
			}
			return tx.Create(&cursor).Error
		case err != nil:
			return err
		}

		cursor.LastSyncedAt = lastSyncedAt.UTC()
		if lastMergedAt.After(cursor.LastMergedAt) {
			cursor.LastMergedAt = lastMergedAt.UTC()
		}
		cursor.TotalSynced += added
		return tx.Save(&cursor).Error
	})
	if err != nil {
		return storageErr("update sync cursor", err)
	}
	return nil
}

// QueryPullRequests returns records across the given repositories whose
// merge timestamp falls in the half-open UTC range [start, end), ordered
// by merge timestamp ascending.
func (s *RecordStore) QueryPullRequests(ctx context.Context, repositories []string, start, end time.Time) ([]domain.PullRequest, error) {
	var records []domain.PullRequest
	err := s.db.WithContext(ctx).
		Where("repository IN ?", repositories).
		Where("merged_at >= ? AND merged_at < ?", start.UTC(), end.UTC()).
		Order("merged_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, storageErr("query pull requests", err)
	}
	return records, nil
}

// QueryPullRequestsChunked streams the same result set as
// QueryPullRequests in chunks of at most chunkSize rows, bounding memory
// for large histories. Iteration stops at the first callback error.
func (s *RecordStore) QueryPullRequestsChunked(ctx context.Context, repositories []string, start, end time.Time, chunkSize int, fn func([]domain.PullRequest) error) error {
	if chunkSize <= 0 {
		chunkSize = 500
	}

	lastMerged := start.UTC()
	lastID := uint(0)
	for {
		var chunk []domain.PullRequest
		// Keyset pagination on (merged_at, id); offset scans degrade on
		// large tables.
		err := s.db.WithContext(ctx).
			Where("repository IN ?", repositories).
			Where("merged_at < ?", end.UTC()).
			Where("(merged_at > ?) OR (merged_at = ? AND id > ?)", lastMerged, lastMerged, lastID).
			Order("merged_at ASC, id ASC").
			Limit(chunkSize).
			Find(&chunk).Error
		if err != nil {
			return storageErr("query pull requests chunked", err)
		}
		if len(chunk) == 0 {
			return nil
		}

		if err := fn(chunk); err != nil {
			return err
		}

		tail := chunk[len(chunk)-1]
		lastMerged = tail.MergedAt
		lastID = tail.ID

		if len(chunk) < chunkSize {
			return nil
		}
	}
}

// DeleteBefore removes records merged strictly before the cutoff and
// returns the number removed. Used for retention cleanup.
func (s *RecordStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("merged_at < ?", cutoff.UTC()).
		Delete(&domain.PullRequest{})
	if res.Error != nil {
		return 0, storageErr("delete before cutoff", res.Error)
	}
	slog.Info("retention cleanup", "deleted", res.RowsAffected, "cutoff", cutoff.UTC())
	return res.RowsAffected, nil
}

// CountPullRequests returns the total number of stored records.
func (s *RecordStore) CountPullRequests(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&domain.PullRequest{}).Count(&count).Error; err != nil {
		return 0, storageErr("count pull requests", err)
	}
	return count, nil
}

// RepositoryStat is the per-repository breakdown used by the stats command.
type RepositoryStat struct {
	Repository    string `json:"repository"`
	PRCount       int64  `json:"pr_count"`
	UniqueAuthors int64  `json:"unique_authors"`
}

// RepositoryStats returns PR and distinct-author counts per repository.
func (s *RecordStore) RepositoryStats(ctx context.Context) ([]RepositoryStat, error) {
	var rows []RepositoryStat
	err := s.db.WithContext(ctx).
		Model(&domain.PullRequest{}).
		Select("repository, COUNT(*) as pr_count, COUNT(DISTINCT author) as unique_authors").
		Group("repository").
		Order("repository ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, storageErr("repository stats", err)
	}
	return rows, nil
}
