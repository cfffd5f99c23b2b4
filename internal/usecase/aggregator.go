package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/yukimura/gminor/internal/domain"
	"github.com/yukimura/gminor/internal/store"
	"github.com/yukimura/gminor/internal/week"
)

// DefaultMovingAverageWindow is the trailing window for the productivity
// moving average, in weeks.
const DefaultMovingAverageWindow = 4

// Aggregator computes the weekly productivity series from stored
// pull-request records. Weeks are resolved in the display timezone;
// reads stream through the store in bounded chunks.
type Aggregator struct {
	records   *store.RecordStore
	resolver  *week.Resolver
	window    int
	chunkSize int
	logger    *slog.Logger
}

// NewAggregator creates a new Aggregator instance. window is the moving
// average width in weeks; chunkSize bounds memory on large histories.
func NewAggregator(records *store.RecordStore, resolver *week.Resolver, window, chunkSize int, logger *slog.Logger) *Aggregator {
	if window <= 0 {
		window = DefaultMovingAverageWindow
	}
	return &Aggregator{
		records:   records,
		resolver:  resolver,
		window:    window,
		chunkSize: chunkSize,
		logger:    logger,
	}
}

// Resolver exposes the timezone resolver the series is computed in.
func (a *Aggregator) Resolver() *week.Resolver { return a.resolver }

// Window exposes the moving average width in weeks.
func (a *Aggregator) Window() int { return a.window }

// ComputeWeeklySeries returns one WeeklyAggregate per calendar week
// covering [from, to], ascending with no gaps. Weeks without PRs are
// included with productivity 0 so the time axis stays continuous. For a
// combined set an author merging in several repositories the same week
// counts once.
func (a *Aggregator) ComputeWeeklySeries(ctx context.Context, set domain.RepoSet, from, to time.Time) ([]domain.WeeklyAggregate, error) {
	weeks := a.resolver.Weeks(from, to)
	if len(weeks) == 0 {
		return nil, nil
	}

	index := make(map[int64]int, len(weeks))
	for i, w := range weeks {
		index[w.Unix()] = i
	}

	counts := make([]int, len(weeks))
	authors := make([]map[string]struct{}, len(weeks))

	rangeStart := weeks[0].UTC()
	rangeEnd := weeks[len(weeks)-1].AddDate(0, 0, 7).UTC()
	err := a.records.QueryPullRequestsChunked(ctx, set.Repositories, rangeStart, rangeEnd, a.chunkSize,
		func(chunk []domain.PullRequest) error {
			for _, rec := range chunk {
				i, ok := index[a.resolver.WeekStart(rec.MergedAt).Unix()]
				if !ok {
					continue
				}
				counts[i]++
				if authors[i] == nil {
					authors[i] = make(map[string]struct{})
				}
				authors[i][rec.Author] = struct{}{}
			}
			return nil
		})
	if err != nil {
		return nil, &domain.AggregationError{SetKey: set.Key, From: rangeStart, To: rangeEnd, Err: err}
	}

	computedAt := time.Now().UTC()
	series := make([]domain.WeeklyAggregate, len(weeks))
	productivities := make([]float64, len(weeks))
	for i, w := range weeks {
		productivities[i] = domain.Productivity(counts[i], len(authors[i]))
		series[i] = domain.WeeklyAggregate{
			SetKey:        set.Key,
			Timezone:      a.resolver.Timezone(),
			WeekStart:     w,
			WeekEnd:       w.AddDate(0, 0, 7),
			PRCount:       counts[i],
			UniqueAuthors: len(authors[i]),
			Productivity:  productivities[i],
			ComputedAt:    computedAt,
		}
	}

	// Trailing moving average is left absent until a full window exists,
	// to avoid fabricating trend data from an incomplete window.
	for i := a.window - 1; i < len(series); i++ {
		mean, err := stats.Mean(productivities[i-a.window+1 : i+1])
		if err != nil {
			return nil, &domain.AggregationError{SetKey: set.Key, From: rangeStart, To: rangeEnd, Err: err}
		}
		series[i].MovingAverage = &mean
	}

	a.logger.Debug("weekly series computed",
		"set", set.Key, "weeks", len(series), "timezone", a.resolver.Timezone())
	return series, nil
}

// SeriesSummary is the statistics surface behind the stats command.
type SeriesSummary struct {
	TotalWeeks          int     `json:"total_weeks"`
	TotalPRs            int     `json:"total_prs"`
	AverageProductivity float64 `json:"average_productivity"`
	MaxProductivity     float64 `json:"max_productivity"`
	MinProductivity     float64 `json:"min_productivity"`
}

// Summarize condenses a weekly series into its headline statistics.
func Summarize(series []domain.WeeklyAggregate) SeriesSummary {
	if len(series) == 0 {
		return SeriesSummary{}
	}

	summary := SeriesSummary{TotalWeeks: len(series)}
	values := make([]float64, len(series))
	for i, agg := range series {
		summary.TotalPRs += agg.PRCount
		values[i] = agg.Productivity
	}

	// stats errors only on empty input, which is excluded above.
	summary.AverageProductivity, _ = stats.Mean(values)
	summary.MaxProductivity, _ = stats.Max(values)
	summary.MinProductivity, _ = stats.Min(values)
	return summary
}
