package store

import (
	"context"
	"time"

	"github.com/yukimura/gminor/internal/domain"
	"gorm.io/gorm"
)

// The weekly_aggregates relation is a derived view owned by the aggregate
// cache: it can be cleared at any time without losing source data.

// ReplaceWeeklySeries atomically replaces every cached row for the
// (set key, timezone) pair covering [from, to) with the given series.
// A failed replacement leaves the prior rows intact.
func (s *RecordStore) ReplaceWeeklySeries(ctx context.Context, setKey, timezone string, from, to time.Time, series []domain.WeeklyAggregate) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("set_key = ? AND timezone = ?", setKey, timezone).
			Where("week_start >= ? AND week_start < ?", from, to).
			Delete(&domain.WeeklyAggregate{}).Error
		if err != nil {
			return err
		}
		if len(series) == 0 {
			return nil
		}
		return tx.CreateInBatches(series, insertBatchSize).Error
	})
	if err != nil {
		return storageErr("replace weekly series", err)
	}
	return nil
}

// GetWeeklySeries returns the cached rows for a (set key, timezone) pair
// whose week start falls in [from, to), ascending.
func (s *RecordStore) GetWeeklySeries(ctx context.Context, setKey, timezone string, from, to time.Time) ([]domain.WeeklyAggregate, error) {
	var series []domain.WeeklyAggregate
	err := s.db.WithContext(ctx).
		Where("set_key = ? AND timezone = ?", setKey, timezone).
		Where("week_start >= ? AND week_start < ?", from, to).
		Order("week_start ASC").
		Find(&series).Error
	if err != nil {
		return nil, storageErr("get weekly series", err)
	}
	return series, nil
}

// ClearWeeklySeries drops every cached aggregate row regardless of set
// key, including rows for repositories no longer configured. Used by
// retention cleanup, where any cached series may reference deleted
// records.
func (s *RecordStore) ClearWeeklySeries(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&domain.WeeklyAggregate{})
	if res.Error != nil {
		return 0, storageErr("clear weekly series", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteWeeklySeries removes every cached row whose set key is one of the
// given keys and returns the number removed. Used by cache invalidation
// after a sync commit.
func (s *RecordStore) DeleteWeeklySeries(ctx context.Context, setKeys []string) (int64, error) {
	if len(setKeys) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("set_key IN ?", setKeys).
		Delete(&domain.WeeklyAggregate{})
	if res.Error != nil {
		return 0, storageErr("delete weekly series", res.Error)
	}
	return res.RowsAffected, nil
}
