package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yukimura/gminor/internal/domain"
	"github.com/yukimura/gminor/internal/store"
	"github.com/yukimura/gminor/internal/testutil"
	"github.com/yukimura/gminor/internal/week"
)

func newTestAggregator(t *testing.T, timezone string, window int) (*Aggregator, *store.RecordStore) {
	t.Helper()
	resolver, err := week.NewResolver(timezone, time.Monday)
	require.NoError(t, err)
	records := store.NewRecordStore(testutil.OpenTestDB(t))
	return NewAggregator(records, resolver, window, 10, discardLogger()), records
}

func seed(t *testing.T, records *store.RecordStore, prs []domain.PullRequest) {
	t.Helper()
	_, err := records.UpsertPullRequests(context.Background(), prs, false)
	require.NoError(t, err)
}

func mkpr(repo string, number int, author string, merged time.Time) domain.PullRequest {
	return domain.PullRequest{
		Repository: repo,
		Number:     number,
		Author:     author,
		MergedAt:   merged,
		CreatedAt:  merged,
	}
}

func TestAggregator_ComputeWeeklySeries(t *testing.T) {
	ctx := context.Background()
	agg, records := newTestAggregator(t, "UTC", 4)

	// Week of Mar 4: 3 PRs by 2 authors. Week of Mar 11: empty.
	// Week of Mar 18: 2 PRs by 1 author.
	seed(t, records, []domain.PullRequest{
		mkpr("acme/api", 1, "alice", time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)),
		mkpr("acme/api", 2, "alice", time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC)),
		mkpr("acme/api", 3, "bob", time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC)),
		mkpr("acme/api", 4, "alice", time.Date(2024, 3, 19, 9, 0, 0, 0, time.UTC)),
		mkpr("acme/api", 5, "alice", time.Date(2024, 3, 21, 9, 0, 0, 0, time.UTC)),
	})

	series, err := agg.ComputeWeeklySeries(ctx, domain.SingleRepo("acme/api"),
		time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 24, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, series, 3)

	assert.Equal(t, "2024-03-04", series[0].WeekStart.Format("2006-01-02"))
	assert.Equal(t, 3, series[0].PRCount)
	assert.Equal(t, 2, series[0].UniqueAuthors)
	assert.InDelta(t, 1.5, series[0].Productivity, 1e-9)

	// The empty middle week is present with productivity 0, keeping the
	// series gap free.
	assert.Equal(t, "2024-03-11", series[1].WeekStart.Format("2006-01-02"))
	assert.Zero(t, series[1].PRCount)
	assert.Zero(t, series[1].UniqueAuthors)
	assert.Zero(t, series[1].Productivity)

	assert.Equal(t, 2, series[2].PRCount)
	assert.Equal(t, 1, series[2].UniqueAuthors)
	assert.InDelta(t, 2.0, series[2].Productivity, 1e-9)

	// Three weeks cannot fill a four-week trailing window.
	for _, row := range series {
		assert.Nil(t, row.MovingAverage)
	}
}

func TestAggregator_MovingAverage(t *testing.T) {
	ctx := context.Background()
	agg, records := newTestAggregator(t, "UTC", 2)

	seed(t, records, []domain.PullRequest{
		mkpr("acme/api", 1, "alice", time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)),
		mkpr("acme/api", 2, "alice", time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)),
		mkpr("acme/api", 3, "alice", time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC)),
		mkpr("acme/api", 4, "alice", time.Date(2024, 3, 19, 9, 0, 0, 0, time.UTC)),
	})

	series, err := agg.ComputeWeeklySeries(ctx, domain.SingleRepo("acme/api"),
		time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, series, 3)

	// Productivities are 1, 2, 1.
	assert.Nil(t, series[0].MovingAverage)
	require.NotNil(t, series[1].MovingAverage)
	assert.InDelta(t, 1.5, *series[1].MovingAverage, 1e-9)
	require.NotNil(t, series[2].MovingAverage)
	assert.InDelta(t, 1.5, *series[2].MovingAverage, 1e-9)
}

func TestAggregator_CombinedDedupsAuthorsAcrossRepos(t *testing.T) {
	ctx := context.Background()
	agg, records := newTestAggregator(t, "UTC", 4)

	monday := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	seed(t, records, []domain.PullRequest{
		mkpr("acme/api", 1, "alice", monday.Add(10*time.Hour)),
		mkpr("acme/web", 1, "alice", monday.Add(20*time.Hour)),
		mkpr("acme/web", 2, "bob", monday.Add(30*time.Hour)),
	})

	t.Run("combined counts each author once per week", func(t *testing.T) {
		set := domain.Combined([]string{"acme/api", "acme/web"})
		series, err := agg.ComputeWeeklySeries(ctx, set, monday, monday.AddDate(0, 0, 6))
		require.NoError(t, err)
		require.Len(t, series, 1)

		assert.Equal(t, domain.CombinedKey, series[0].SetKey)
		assert.Equal(t, 3, series[0].PRCount)
		assert.Equal(t, 2, series[0].UniqueAuthors)
		assert.InDelta(t, 1.5, series[0].Productivity, 1e-9)
	})

	t.Run("single repo sees only its own records", func(t *testing.T) {
		series, err := agg.ComputeWeeklySeries(ctx, domain.SingleRepo("acme/api"), monday, monday.AddDate(0, 0, 6))
		require.NoError(t, err)
		require.Len(t, series, 1)

		assert.Equal(t, 1, series[0].PRCount)
		assert.Equal(t, 1, series[0].UniqueAuthors)
	})
}

func TestAggregator_TimezoneShiftsWeekMembership(t *testing.T) {
	ctx := context.Background()

	// 23:30 Sunday UTC is Monday morning in Tokyo: the same record lands
	// in different weeks depending on the display timezone.
	merged := time.Date(2024, 3, 10, 23, 30, 0, 0, time.UTC)
	from := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 17, 0, 0, 0, 0, time.UTC)

	utcAgg, utcRecords := newTestAggregator(t, "UTC", 4)
	seed(t, utcRecords, []domain.PullRequest{mkpr("acme/api", 1, "alice", merged)})
	utcSeries, err := utcAgg.ComputeWeeklySeries(ctx, domain.SingleRepo("acme/api"), from, to)
	require.NoError(t, err)
	require.Len(t, utcSeries, 2)
	assert.Equal(t, 1, utcSeries[0].PRCount)
	assert.Zero(t, utcSeries[1].PRCount)

	tokyoAgg, tokyoRecords := newTestAggregator(t, "Asia/Tokyo", 4)
	seed(t, tokyoRecords, []domain.PullRequest{mkpr("acme/api", 1, "alice", merged)})
	tokyoSeries, err := tokyoAgg.ComputeWeeklySeries(ctx, domain.SingleRepo("acme/api"), from, to)
	require.NoError(t, err)
	require.Len(t, tokyoSeries, 2)
	assert.Zero(t, tokyoSeries[0].PRCount)
	assert.Equal(t, 1, tokyoSeries[1].PRCount)
}

func TestSummarize(t *testing.T) {
	t.Run("empty series yields zero summary", func(t *testing.T) {
		assert.Equal(t, SeriesSummary{}, Summarize(nil))
	})

	t.Run("headline statistics", func(t *testing.T) {
		series := []domain.WeeklyAggregate{
			{PRCount: 4, Productivity: 2},
			{PRCount: 0, Productivity: 0},
			{PRCount: 3, Productivity: 1},
		}
		summary := Summarize(series)
		assert.Equal(t, 3, summary.TotalWeeks)
		assert.Equal(t, 7, summary.TotalPRs)
		assert.InDelta(t, 1.0, summary.AverageProductivity, 1e-9)
		assert.InDelta(t, 2.0, summary.MaxProductivity, 1e-9)
		assert.InDelta(t, 0.0, summary.MinProductivity, 1e-9)
	})
}
