// Package usecase contains the business logic of the application.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yukimura/gminor/internal/domain"
	"github.com/yukimura/gminor/internal/gateway"
	"github.com/yukimura/gminor/internal/store"
)

// SyncState is the terminal or intermediate state of one repository sync.
type SyncState string

const (
	StateIdle       SyncState = "idle"
	StateFetching   SyncState = "fetching"
	StatePersisting SyncState = "persisting"
	StateAdvancing  SyncState = "advancing"
	StateDone       SyncState = "done"
	StateFailed     SyncState = "failed"
)

// SyncConfig tunes the per-repository sync state machine.
type SyncConfig struct {
	InitialLookbackDays int
	RateLimitBuffer     int
	MaxRetries          int
	PageTimeout         time.Duration
}

// SyncOptions are per-invocation overrides.
type SyncOptions struct {
	// LookbackDays overrides the configured initial lookback for
	// repositories without a cursor. Zero means use the config value.
	LookbackDays int
	// Since / Until pin an explicit fetch range (period backfill). When
	// Since is set the cursor lower bound is ignored.
	Since time.Time
	Until time.Time
	// ForceUpdate refreshes titles of already-stored records.
	ForceUpdate bool
}

// RepoSyncResult records the terminal state of one repository sync run.
type RepoSyncResult struct {
	Repository     string        `json:"repository"`
	State          SyncState     `json:"state"`
	RecordsFetched int           `json:"records_fetched"`
	RecordsAdded   int64         `json:"records_added"`
	Duration       time.Duration `json:"duration"`
	Err            error         `json:"-"`
}

// SyncManager drives the incremental sync state machine for a single
// repository: cursor read, paged fetch with rate-limit backoff, durable
// upsert, then cursor advance. Data is always committed before the
// cursor, so a crash between the two re-fetches an overlapping range
// instead of silently skipping records.
type SyncManager struct {
	fetcher gateway.Fetcher
	records *store.RecordStore
	cfg     SyncConfig
	logger  *slog.Logger

	// sleepUntil is overridable so tests do not wait on real resets.
	sleepUntil func(ctx context.Context, until time.Time) error
	now        func() time.Time
}

// NewSyncManager creates a new SyncManager instance.
func NewSyncManager(fetcher gateway.Fetcher, records *store.RecordStore, cfg SyncConfig, logger *slog.Logger) *SyncManager {
	if cfg.InitialLookbackDays <= 0 {
		cfg.InitialLookbackDays = 180
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &SyncManager{
		fetcher:    fetcher,
		records:    records,
		cfg:        cfg,
		logger:     logger,
		sleepUntil: sleepUntil,
		now:        time.Now,
	}
}

// SyncRepository runs one full sync for a repository and reports the
// terminal state. A Failed result never corrupts previously committed
// state: the cursor stays at the last successful commit.
func (m *SyncManager) SyncRepository(ctx context.Context, repository string, opts SyncOptions) RepoSyncResult {
	started := m.now()
	result := RepoSyncResult{Repository: repository, State: StateIdle}
	fail := func(err error) RepoSyncResult {
		result.State = StateFailed
		result.Err = err
		result.Duration = m.now().Sub(started)
		m.logger.Error("sync failed", "repository", repository, "error", err)
		return result
	}

	since, until, err := m.resolveRange(ctx, repository, opts)
	if err != nil {
		return fail(err)
	}
	m.logger.Info("sync range resolved", "repository", repository,
		"since", since.Format(time.RFC3339), "until", until.Format(time.RFC3339))

	result.State = StateFetching
	batch, err := m.fetchAll(ctx, repository, since, until)
	if err != nil {
		return fail(err)
	}
	result.RecordsFetched = len(batch)

	result.State = StatePersisting
	added, err := m.records.UpsertPullRequests(ctx, batch, opts.ForceUpdate)
	if err != nil {
		return fail(err)
	}
	result.RecordsAdded = added

	result.State = StateAdvancing
	highWater := since
	if cursor, err := m.records.GetSyncCursor(ctx, repository); err != nil {
		// The store keeps the cursor monotonic, so advancing from the
		// fetch lower bound is safe; still worth noting.
		m.logger.Warn("cursor read failed before advance",
			"repository", repository, "error", err)
	} else if cursor != nil {
		highWater = cursor.LastMergedAt
	}
	for _, rec := range batch {
		if rec.MergedAt.After(highWater) {
			highWater = rec.MergedAt
		}
	}
	if err := m.records.UpdateSyncCursor(ctx, repository, m.now().UTC(), highWater, added); err != nil {
		return fail(err)
	}

	result.State = StateDone
	result.Duration = m.now().Sub(started)
	m.logger.Info("sync done", "repository", repository,
		"fetched", result.RecordsFetched, "added", result.RecordsAdded, "duration", result.Duration)
	return result
}

// resolveRange computes the fetch lower bound: an explicit Since wins,
// then the cursor high-water mark (inclusive; re-fetching the boundary
// record is tolerated because upsert is idempotent), then now minus the
// initial lookback.
func (m *SyncManager) resolveRange(ctx context.Context, repository string, opts SyncOptions) (since, until time.Time, err error) {
	until = opts.Until
	if until.IsZero() {
		until = m.now().UTC()
	}
	if !opts.Since.IsZero() {
		return opts.Since.UTC(), until, nil
	}

	cursor, err := m.records.GetSyncCursor(ctx, repository)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if cursor != nil {
		return cursor.LastMergedAt, until, nil
	}

	lookback := opts.LookbackDays
	if lookback <= 0 {
		lookback = m.cfg.InitialLookbackDays
	}
	return m.now().UTC().AddDate(0, 0, -lookback), until, nil
}

// fetchAll drives paging until the listing is exhausted, converting
// gateway records to domain records with the author login normalized
// once at ingestion.
func (m *SyncManager) fetchAll(ctx context.Context, repository string, since, until time.Time) ([]domain.PullRequest, error) {
	var batch []domain.PullRequest
	page := 1
	for {
		if err := m.ensureQuota(ctx); err != nil {
			return nil, err
		}

		fetched, err := m.fetchPage(ctx, repository, since, until, page)
		if err != nil {
			return nil, err
		}

		for _, pr := range fetched.Records {
			batch = append(batch, domain.PullRequest{
				Repository: repository,
				Number:     pr.Number,
				Author:     domain.NormalizeLogin(pr.Author),
				Title:      pr.Title,
				MergedAt:   pr.MergedAt.UTC(),
				CreatedAt:  pr.CreatedAt.UTC(),
			})
		}

		if fetched.NextPage == 0 {
			return batch, nil
		}
		page = fetched.NextPage
	}
}

// ensureQuota blocks until the API-reported reset time whenever
// the remaining quota is below the configured buffer. Waits are
// cancellable and bounded by the retry ceiling.
func (m *SyncManager) ensureQuota(ctx context.Context) error {
	if m.cfg.RateLimitBuffer <= 0 {
		return nil
	}
	for attempt := 0; attempt <= m.cfg.MaxRetries; attempt++ {
		limit, err := m.fetcher.RateLimit(ctx)
		if err != nil {
			// Quota probing is advisory; the page fetch itself still
			// handles hard rate-limit responses.
			m.logger.Warn("rate limit status unavailable", "error", err)
			return nil
		}
		if limit.Remaining >= m.cfg.RateLimitBuffer {
			return nil
		}
		m.logger.Warn("rate limit buffer reached, waiting for reset",
			"remaining", limit.Remaining, "reset_at", limit.ResetAt)
		if err := m.sleepUntil(ctx, limit.ResetAt); err != nil {
			return err
		}
	}
	return domain.ErrRateLimitExceeded
}

// fetchPage requests one page with the configured timeout and a bounded
// retry loop. Each attempt ends in one of three typed outcomes: success,
// retryable failure (transport hiccup or rate-limit wait), or terminal
// failure (authentication, missing repository, cancellation).
func (m *SyncManager) fetchPage(ctx context.Context, repository string, since, until time.Time, page int) (*gateway.Page, error) {
	var lastErr error
	for attempt := 0; attempt <= m.cfg.MaxRetries; attempt++ {
		fetched, err := m.fetchOnce(ctx, repository, since, until, page)
		if err == nil {
			return fetched, nil
		}

		var rateErr *gateway.RateLimitedError
		switch {
		case errors.Is(err, context.Canceled):
			// Parent cancellation is terminal; a per-page deadline shows
			// up as DeadlineExceeded and goes through the retry branch.
			return nil, err
		case errors.Is(err, domain.ErrAuthentication), errors.Is(err, domain.ErrRepositoryNotFound):
			return nil, &domain.TransportError{Repository: repository, Err: err}
		case errors.As(err, &rateErr):
			lastErr = domain.ErrRateLimitExceeded
			if werr := m.sleepUntil(ctx, rateErr.ResetAt); werr != nil {
				return nil, werr
			}
		default:
			lastErr = err
			m.logger.Warn("page fetch failed, retrying",
				"repository", repository, "page", page, "attempt", attempt+1, "error", err)
			if werr := m.sleepUntil(ctx, m.now().Add(time.Duration(attempt+1)*time.Second)); werr != nil {
				return nil, werr
			}
		}
	}

	if errors.Is(lastErr, domain.ErrRateLimitExceeded) {
		return nil, fmt.Errorf("%w: %s page %d", domain.ErrRateLimitExceeded, repository, page)
	}
	return nil, &domain.TransportError{Repository: repository, Err: lastErr}
}

func (m *SyncManager) fetchOnce(ctx context.Context, repository string, since, until time.Time, page int) (*gateway.Page, error) {
	if m.cfg.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.PageTimeout)
		defer cancel()
	}
	return m.fetcher.FetchMergedPage(ctx, repository, since, until, page)
}

// sleepUntil waits for the deadline or the context, whichever ends first.
func sleepUntil(ctx context.Context, until time.Time) error {
	d := time.Until(until)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
