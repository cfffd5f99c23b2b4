package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yukimura/gminor/internal/domain"
	"github.com/yukimura/gminor/internal/store"
	"github.com/yukimura/gminor/internal/testutil"
)

func mergedAt(day, hour int) time.Time {
	return time.Date(2024, 3, day, hour, 0, 0, 0, time.UTC)
}

func pr(repo string, number int, author string, merged time.Time) domain.PullRequest {
	return domain.PullRequest{
		Repository: repo,
		Number:     number,
		Author:     author,
		Title:      "change",
		MergedAt:   merged,
		CreatedAt:  merged.Add(-24 * time.Hour),
	}
}

func TestRecordStore_UpsertPullRequests(t *testing.T) {
	ctx := context.Background()
	s := store.NewRecordStore(testutil.OpenTestDB(t))

	records := []domain.PullRequest{
		pr("acme/api", 1, "alice", mergedAt(11, 10)),
		pr("acme/api", 2, "bob", mergedAt(12, 10)),
	}

	added, err := s.UpsertPullRequests(ctx, records, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), added)

	t.Run("re-upserting the same batch adds nothing", func(t *testing.T) {
		again := []domain.PullRequest{
			pr("acme/api", 1, "alice", mergedAt(11, 10)),
			pr("acme/api", 2, "bob", mergedAt(12, 10)),
			pr("acme/api", 3, "carol", mergedAt(13, 10)),
		}
		added, err := s.UpsertPullRequests(ctx, again, false)
		require.NoError(t, err)
		assert.Equal(t, int64(1), added)

		count, err := s.CountPullRequests(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
	})

	t.Run("same number in another repository is a distinct record", func(t *testing.T) {
		added, err := s.UpsertPullRequests(ctx, []domain.PullRequest{
			pr("acme/web", 1, "alice", mergedAt(11, 12)),
		}, false)
		require.NoError(t, err)
		assert.Equal(t, int64(1), added)
	})

	t.Run("force refreshes the title of an existing record", func(t *testing.T) {
		update := pr("acme/api", 1, "alice", mergedAt(11, 10))
		update.Title = "retitled"
		_, err := s.UpsertPullRequests(ctx, []domain.PullRequest{update}, true)
		require.NoError(t, err)

		got, err := s.QueryPullRequests(ctx, []string{"acme/api"}, mergedAt(11, 0), mergedAt(11, 23))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "retitled", got[0].Title)
	})
}

func TestRecordStore_SyncCursor(t *testing.T) {
	ctx := context.Background()
	s := store.NewRecordStore(testutil.OpenTestDB(t))

	t.Run("missing cursor is nil without error", func(t *testing.T) {
		cursor, err := s.GetSyncCursor(ctx, "acme/api")
		require.NoError(t, err)
		assert.Nil(t, cursor)
	})

	syncedAt := mergedAt(15, 9)
	highWater := mergedAt(14, 18)
	require.NoError(t, s.UpdateSyncCursor(ctx, "acme/api", syncedAt, highWater, 10))

	cursor, err := s.GetSyncCursor(ctx, "acme/api")
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, highWater, cursor.LastMergedAt.UTC())
	assert.Equal(t, int64(10), cursor.TotalSynced)

	t.Run("high-water mark never moves backwards", func(t *testing.T) {
		older := mergedAt(10, 0)
		require.NoError(t, s.UpdateSyncCursor(ctx, "acme/api", mergedAt(16, 9), older, 0))

		cursor, err := s.GetSyncCursor(ctx, "acme/api")
		require.NoError(t, err)
		assert.Equal(t, highWater, cursor.LastMergedAt.UTC())
		assert.Equal(t, mergedAt(16, 9), cursor.LastSyncedAt.UTC())
	})

	t.Run("total synced accumulates", func(t *testing.T) {
		require.NoError(t, s.UpdateSyncCursor(ctx, "acme/api", mergedAt(17, 9), mergedAt(16, 12), 5))

		cursor, err := s.GetSyncCursor(ctx, "acme/api")
		require.NoError(t, err)
		assert.Equal(t, int64(15), cursor.TotalSynced)
		assert.Equal(t, mergedAt(16, 12), cursor.LastMergedAt.UTC())
	})
}

func TestRecordStore_QueryPullRequests(t *testing.T) {
	ctx := context.Background()
	s := store.NewRecordStore(testutil.OpenTestDB(t))

	_, err := s.UpsertPullRequests(ctx, []domain.PullRequest{
		pr("acme/api", 1, "alice", mergedAt(10, 10)),
		pr("acme/api", 2, "bob", mergedAt(12, 10)),
		pr("acme/web", 7, "carol", mergedAt(12, 11)),
		pr("acme/web", 8, "dave", mergedAt(20, 10)),
	}, false)
	require.NoError(t, err)

	t.Run("range is half open and spans repositories", func(t *testing.T) {
		got, err := s.QueryPullRequests(ctx, []string{"acme/api", "acme/web"},
			mergedAt(12, 10), mergedAt(20, 10))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, 2, got[0].Number)
		assert.Equal(t, 7, got[1].Number)
	})

	t.Run("repository filter applies", func(t *testing.T) {
		got, err := s.QueryPullRequests(ctx, []string{"acme/web"},
			mergedAt(1, 0), mergedAt(28, 0))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "carol", got[0].Author)
	})
}

func TestRecordStore_QueryPullRequestsChunked(t *testing.T) {
	ctx := context.Background()
	s := store.NewRecordStore(testutil.OpenTestDB(t))

	var records []domain.PullRequest
	for i := range 25 {
		records = append(records, pr("acme/api", i+1, "alice", mergedAt(10, 0).Add(time.Duration(i)*time.Minute)))
	}
	_, err := s.UpsertPullRequests(ctx, records, false)
	require.NoError(t, err)

	var seen []int
	var chunks int
	err = s.QueryPullRequestsChunked(ctx, []string{"acme/api"}, mergedAt(10, 0), mergedAt(11, 0), 10,
		func(chunk []domain.PullRequest) error {
			chunks++
			for _, rec := range chunk {
				seen = append(seen, rec.Number)
			}
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, 3, chunks)
	require.Len(t, seen, 25)
	for i, number := range seen {
		assert.Equal(t, i+1, number)
	}
}

func TestRecordStore_DeleteBefore(t *testing.T) {
	ctx := context.Background()
	s := store.NewRecordStore(testutil.OpenTestDB(t))

	_, err := s.UpsertPullRequests(ctx, []domain.PullRequest{
		pr("acme/api", 1, "alice", mergedAt(5, 10)),
		pr("acme/api", 2, "bob", mergedAt(15, 10)),
	}, false)
	require.NoError(t, err)

	deleted, err := s.DeleteBefore(ctx, mergedAt(10, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	count, err := s.CountPullRequests(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRecordStore_RepositoryStats(t *testing.T) {
	ctx := context.Background()
	s := store.NewRecordStore(testutil.OpenTestDB(t))

	_, err := s.UpsertPullRequests(ctx, []domain.PullRequest{
		pr("acme/api", 1, "alice", mergedAt(10, 10)),
		pr("acme/api", 2, "alice", mergedAt(11, 10)),
		pr("acme/api", 3, "bob", mergedAt(12, 10)),
		pr("acme/web", 1, "alice", mergedAt(12, 10)),
	}, false)
	require.NoError(t, err)

	stats, err := s.RepositoryStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, store.RepositoryStat{Repository: "acme/api", PRCount: 3, UniqueAuthors: 2}, stats[0])
	assert.Equal(t, store.RepositoryStat{Repository: "acme/web", PRCount: 1, UniqueAuthors: 1}, stats[1])
}

func TestRecordStore_WeeklySeries(t *testing.T) {
	ctx := context.Background()
	s := store.NewRecordStore(testutil.OpenTestDB(t))

	weekA := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	weekB := weekA.AddDate(0, 0, 7)
	series := []domain.WeeklyAggregate{
		{SetKey: "all", Timezone: "UTC", WeekStart: weekA, WeekEnd: weekB, PRCount: 4, UniqueAuthors: 2, Productivity: 2, ComputedAt: mergedAt(18, 0)},
		{SetKey: "all", Timezone: "UTC", WeekStart: weekB, WeekEnd: weekB.AddDate(0, 0, 7), PRCount: 3, UniqueAuthors: 3, Productivity: 1, ComputedAt: mergedAt(18, 0)},
	}
	require.NoError(t, s.ReplaceWeeklySeries(ctx, "all", "UTC", weekA, weekB.AddDate(0, 0, 7), series))

	t.Run("round trip preserves order and values", func(t *testing.T) {
		got, err := s.GetWeeklySeries(ctx, "all", "UTC", weekA, weekB.AddDate(0, 0, 7))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, 4, got[0].PRCount)
		assert.Equal(t, float64(1), got[1].Productivity)
	})

	t.Run("replacement does not duplicate rows", func(t *testing.T) {
		require.NoError(t, s.ReplaceWeeklySeries(ctx, "all", "UTC", weekA, weekB.AddDate(0, 0, 7), []domain.WeeklyAggregate{
			{SetKey: "all", Timezone: "UTC", WeekStart: weekA, WeekEnd: weekB, PRCount: 5, UniqueAuthors: 2, Productivity: 2.5, ComputedAt: mergedAt(19, 0)},
		}))

		got, err := s.GetWeeklySeries(ctx, "all", "UTC", weekA, weekB.AddDate(0, 0, 7))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 5, got[0].PRCount)
	})

	t.Run("delete by set key clears cached rows", func(t *testing.T) {
		deleted, err := s.DeleteWeeklySeries(ctx, []string{"all"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		got, err := s.GetWeeklySeries(ctx, "all", "UTC", weekA, weekB.AddDate(0, 0, 7))
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("clear drops rows for stale set keys too", func(t *testing.T) {
		// A repository removed from config leaves rows under its old key;
		// clearing ignores set keys entirely.
		require.NoError(t, s.ReplaceWeeklySeries(ctx, "all", "UTC", weekA, weekB, []domain.WeeklyAggregate{
			{SetKey: "all", Timezone: "UTC", WeekStart: weekA, WeekEnd: weekB, PRCount: 3, UniqueAuthors: 1, Productivity: 3, ComputedAt: mergedAt(20, 0)},
		}))
		require.NoError(t, s.ReplaceWeeklySeries(ctx, "legacy/gone", "UTC", weekA, weekB, []domain.WeeklyAggregate{
			{SetKey: "legacy/gone", Timezone: "UTC", WeekStart: weekA, WeekEnd: weekB, PRCount: 2, UniqueAuthors: 1, Productivity: 2, ComputedAt: mergedAt(20, 0)},
		}))

		cleared, err := s.ClearWeeklySeries(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), cleared)

		for _, key := range []string{"all", "legacy/gone"} {
			got, err := s.GetWeeklySeries(ctx, key, "UTC", weekA, weekB.AddDate(0, 0, 7))
			require.NoError(t, err)
			assert.Empty(t, got)
		}
	})
}
