package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yukimura/gminor/internal/domain"
)

func newTestReportBuilder(t *testing.T) *ReportBuilder {
	t.Helper()
	agg, records := newTestAggregator(t, "UTC", 4)
	// alice merges in both repositories the same week.
	seed(t, records, []domain.PullRequest{
		mkpr("acme/api", 1, "alice", time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)),
		mkpr("acme/api", 2, "bob", time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC)),
		mkpr("acme/web", 1, "alice", time.Date(2024, 3, 7, 9, 0, 0, 0, time.UTC)),
	})
	cache := NewAggregateCache(agg, records, time.Hour, discardLogger())
	return NewReportBuilder(cache)
}

func TestReportBuilder_BuildCombined(t *testing.T) {
	builder := newTestReportBuilder(t)
	from := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	report, err := builder.Build(context.Background(), domain.Combined([]string{"acme/api", "acme/web"}), from, to)
	require.NoError(t, err)

	assert.Equal(t, ModeCombined, report.Mode)
	assert.Equal(t, "2024-03-04", report.From)
	assert.Equal(t, "2024-03-11", report.To)
	assert.Equal(t, 4, report.WindowWeeks)
	assert.Empty(t, report.PerRepository)

	require.Len(t, report.Series, 1)
	assert.Equal(t, 3, report.Series[0].PRCount)
	assert.Equal(t, 2, report.Series[0].UniqueAuthors)
	require.NotNil(t, report.Summary)
	assert.Equal(t, 3, report.Summary.TotalPRs)
}

func TestReportBuilder_BuildSingle(t *testing.T) {
	builder := newTestReportBuilder(t)
	from := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	report, err := builder.Build(context.Background(), domain.SingleRepo("acme/web"), from, to)
	require.NoError(t, err)

	assert.Equal(t, ModeSingle, report.Mode)
	require.Len(t, report.Series, 1)
	assert.Equal(t, 1, report.Series[0].PRCount)
}

func TestReportBuilder_BuildSeparate(t *testing.T) {
	builder := newTestReportBuilder(t)
	from := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	report, err := builder.BuildSeparate(context.Background(), []string{"acme/api", "acme/web"}, from, to)
	require.NoError(t, err)

	assert.Equal(t, ModeSeparate, report.Mode)
	assert.Equal(t, "2024-03-04", report.From)
	assert.Equal(t, "2024-03-11", report.To)
	assert.Empty(t, report.Series)
	assert.Nil(t, report.Summary)

	// One section per repository, authors counted within each.
	require.Len(t, report.PerRepository, 2)
	api := report.PerRepository[0]
	assert.Equal(t, "acme/api", api.Repository)
	require.Len(t, api.Series, 1)
	assert.Equal(t, 2, api.Series[0].PRCount)
	assert.Equal(t, 2, api.Series[0].UniqueAuthors)
	assert.Equal(t, 2, api.Summary.TotalPRs)

	web := report.PerRepository[1]
	assert.Equal(t, "acme/web", web.Repository)
	require.Len(t, web.Series, 1)
	assert.Equal(t, 1, web.Series[0].PRCount)
	assert.Equal(t, 1, web.Series[0].UniqueAuthors)
}

func TestReportBuilder_BuildSeparateNeedsRepositories(t *testing.T) {
	builder := newTestReportBuilder(t)
	_, err := builder.BuildSeparate(context.Background(), nil, time.Now(), time.Now())
	assert.Error(t, err)
}
