package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/yukimura/gminor/internal/domain"
)

// Report modes: one series over all repositories together, one series
// per repository, or a single repository picked by hand.
const (
	ModeCombined = "combined"
	ModeSeparate = "separate"
	ModeSingle   = "single"
)

// WeeklyPoint is one week of the report series in output form.
type WeeklyPoint struct {
	WeekStart     string   `json:"week_start"`
	WeekEnd       string   `json:"week_end"`
	PRCount       int      `json:"pr_count"`
	UniqueAuthors int      `json:"unique_authors"`
	Productivity  float64  `json:"productivity"`
	MovingAverage *float64 `json:"moving_average"`
}

// RepositorySeries is one repository's series in a separate-mode report.
type RepositorySeries struct {
	Repository string        `json:"repository"`
	Series     []WeeklyPoint `json:"series"`
	Summary    SeriesSummary `json:"summary"`
}

// Report is the full productivity report document. Combined and single
// modes fill Series and Summary; separate mode fills PerRepository.
type Report struct {
	GeneratedAt   time.Time          `json:"generated_at"`
	Timezone      string             `json:"timezone"`
	Repositories  []string           `json:"repositories"`
	Mode          string             `json:"mode"`
	From          string             `json:"from"`
	To            string             `json:"to"`
	WindowWeeks   int                `json:"window_weeks"`
	Series        []WeeklyPoint      `json:"series,omitempty"`
	Summary       *SeriesSummary     `json:"summary,omitempty"`
	PerRepository []RepositorySeries `json:"per_repository,omitempty"`
}

// ReportBuilder assembles report documents from cached weekly series.
type ReportBuilder struct {
	cache *AggregateCache
}

func NewReportBuilder(cache *AggregateCache) *ReportBuilder {
	return &ReportBuilder{cache: cache}
}

func toPoints(series []domain.WeeklyAggregate) []WeeklyPoint {
	points := make([]WeeklyPoint, len(series))
	for i, row := range series {
		points[i] = WeeklyPoint{
			WeekStart:     row.WeekStart.Format("2006-01-02"),
			WeekEnd:       row.WeekEnd.Format("2006-01-02"),
			PRCount:       row.PRCount,
			UniqueAuthors: row.UniqueAuthors,
			Productivity:  row.Productivity,
			MovingAverage: row.MovingAverage,
		}
	}
	return points
}

func (b *ReportBuilder) skeleton(repositories []string, mode string, from, to time.Time) *Report {
	agg := b.cache.aggregator
	report := &Report{
		GeneratedAt:  time.Now().UTC(),
		Timezone:     agg.Resolver().Timezone(),
		Repositories: repositories,
		Mode:         mode,
		WindowWeeks:  agg.Window(),
	}
	if weeks := agg.Resolver().Weeks(from, to); len(weeks) > 0 {
		report.From = weeks[0].Format("2006-01-02")
		report.To = weeks[len(weeks)-1].AddDate(0, 0, 7).Format("2006-01-02")
	}
	return report
}

// Build computes the report for the set over [from, to]. Mode is
// ModeCombined when repositories are aggregated under the combined key
// and ModeSingle otherwise.
func (b *ReportBuilder) Build(ctx context.Context, set domain.RepoSet, from, to time.Time) (*Report, error) {
	series, err := b.cache.WeeklySeries(ctx, set, from, to)
	if err != nil {
		return nil, err
	}

	mode := ModeSingle
	if set.Key == domain.CombinedKey {
		mode = ModeCombined
	}

	report := b.skeleton(set.Repositories, mode, from, to)
	report.Series = toPoints(series)
	summary := Summarize(series)
	report.Summary = &summary
	return report, nil
}

// BuildSeparate computes one series per repository over the same week
// range in a single document. Authors are counted within each
// repository; no cross-repository dedup applies.
func (b *ReportBuilder) BuildSeparate(ctx context.Context, repositories []string, from, to time.Time) (*Report, error) {
	if len(repositories) == 0 {
		return nil, fmt.Errorf("separate report needs at least one repository")
	}

	report := b.skeleton(repositories, ModeSeparate, from, to)
	for _, repo := range repositories {
		series, err := b.cache.WeeklySeries(ctx, domain.SingleRepo(repo), from, to)
		if err != nil {
			return nil, err
		}
		report.PerRepository = append(report.PerRepository, RepositorySeries{
			Repository: repo,
			Series:     toPoints(series),
			Summary:    Summarize(series),
		})
	}
	return report, nil
}
