// Package gateway provides a gateway to the GitHub API, abstracting away
// the underlying REST client from the sync engine.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/yukimura/gminor/internal/domain"
	"golang.org/x/oauth2"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
)

// MergedPR is one merged pull request as reported by the remote API.
type MergedPR struct {
	Number    int
	Author    string
	Title     string
	CreatedAt time.Time
	MergedAt  time.Time
}

// Page is one page of merged PRs. NextPage is zero when the listing is
// exhausted or every remaining record falls before the requested range.
type Page struct {
	Records  []MergedPR
	NextPage int
}

// RateLimit is the remaining-quota snapshot the sync engine consults
// before each page request.
type RateLimit struct {
	Remaining int
	ResetAt   time.Time
}

// RateLimitedError reports that the API refused a request because the
// quota is exhausted; callers may retry after ResetAt.
type RateLimitedError struct {
	ResetAt time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("api rate limited until %s", e.ResetAt.UTC().Format(time.RFC3339))
}

// Fetcher defines the behavior of a gateway for fetching merged pull
// requests from a repository host.
type Fetcher interface {
	FetchMergedPage(ctx context.Context, repository string, since, until time.Time, page int) (*Page, error)
	RateLimit(ctx context.Context) (RateLimit, error)
}

// GitHubGateway is the concrete implementation of the Fetcher interface.
type GitHubGateway struct {
	client  *github.Client
	perPage int
	logger  *slog.Logger
}

// NewGitHubGateway is a constructor that creates a new instance of GitHubGateway.
func NewGitHubGateway(token string, perPage int, logger *slog.Logger) (*GitHubGateway, error) {
	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(nil, github_ratelimit.WithSingleSleepLimit(1*time.Hour, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Base:   rateLimitWaiter,
			Source: ts,
		},
	}
	if perPage <= 0 {
		perPage = 100
	}
	return &GitHubGateway{
		client:  github.NewClient(httpClient),
		perPage: perPage,
		logger:  logger,
	}, nil
}

// FetchMergedPage lists one page of closed PRs (most recently updated
// first) and keeps those merged inside [since, until). Paging stops early
// once a page holds only records updated before since, which cannot be
// followed by in-range merges under the updated-desc ordering.
func (g *GitHubGateway) FetchMergedPage(ctx context.Context, repository string, since, until time.Time, page int) (*Page, error) {
	owner, name, ok := strings.Cut(repository, "/")
	if !ok {
		return nil, fmt.Errorf("invalid repository %q, want owner/name", repository)
	}
	if page <= 0 {
		page = 1
	}

	opts := &github.PullRequestListOptions{
		State:     "closed",
		Sort:      "updated",
		Direction: "desc",
		ListOptions: github.ListOptions{
			PerPage: g.perPage,
			Page:    page,
		},
	}

	prs, resp, err := g.client.PullRequests.List(ctx, owner, name, opts)
	if err != nil {
		return nil, g.classify(repository, err)
	}

	result := &Page{NextPage: resp.NextPage}
	exhausted := len(prs) > 0
	for _, pr := range prs {
		if !pr.GetUpdatedAt().Time.Before(since) {
			exhausted = false
		}
		if pr.MergedAt == nil {
			continue
		}
		mergedAt := pr.GetMergedAt().Time
		if mergedAt.Before(since) || !mergedAt.Before(until) {
			continue
		}
		result.Records = append(result.Records, MergedPR{
			Number:    pr.GetNumber(),
			Author:    pr.GetUser().GetLogin(),
			Title:     pr.GetTitle(),
			CreatedAt: pr.GetCreatedAt().Time.UTC(),
			MergedAt:  mergedAt.UTC(),
		})
	}
	if exhausted {
		result.NextPage = 0
	}

	g.logger.Debug("fetched pull request page",
		"repository", repository, "page", page, "merged", len(result.Records), "next", result.NextPage)
	return result, nil
}

// RateLimit returns the core REST quota snapshot.
func (g *GitHubGateway) RateLimit(ctx context.Context) (RateLimit, error) {
	limits, _, err := g.client.RateLimit.Get(ctx)
	if err != nil {
		return RateLimit{}, fmt.Errorf("failed to get rate limit status: %w", err)
	}
	core := limits.GetCore()
	return RateLimit{
		Remaining: core.Remaining,
		ResetAt:   core.Reset.Time.UTC(),
	}, nil
}

// classify maps go-github errors onto the domain taxonomy so the sync
// state machine can tell terminal failures from retryable ones.
func (g *GitHubGateway) classify(repository string, err error) error {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &RateLimitedError{ResetAt: rateErr.Rate.Reset.Time.UTC()}
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		reset := time.Now().UTC()
		if abuseErr.RetryAfter != nil {
			reset = reset.Add(*abuseErr.RetryAfter)
		}
		return &RateLimitedError{ResetAt: reset}
	}
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch respErr.Response.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", domain.ErrAuthentication, repository)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", domain.ErrRepositoryNotFound, repository)
		}
	}
	return fmt.Errorf("failed to list pull requests for %s: %w", repository, err)
}
