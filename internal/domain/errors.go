package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the failure modes callers branch on.
var (
	// ErrInvalidTimezone is returned for timezone identifiers that are
	// not recognized IANA zone names.
	ErrInvalidTimezone = errors.New("invalid timezone identifier")

	// ErrRateLimitExceeded means the rate-limit backoff retry ceiling was
	// exhausted; terminal for the affected repository only.
	ErrRateLimitExceeded = errors.New("rate limit retry ceiling exceeded")

	// ErrRepositoryNotFound means the remote API reports the repository
	// as missing or inaccessible.
	ErrRepositoryNotFound = errors.New("repository not found")

	// ErrAuthentication means the remote API rejected the credentials.
	ErrAuthentication = errors.New("authentication failed")
)

// StorageError wraps a storage-layer failure. The enclosing atomic unit
// (upsert batch, cursor update) is aborted without a partial commit.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// TransportError wraps a network or API failure that survived the
// bounded retries; terminal for one repository.
type TransportError struct {
	Repository string
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error for %s: %v", e.Repository, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AggregationError reports an aggregation failure together with the
// offending repository-set key and week range.
type AggregationError struct {
	SetKey string
	From   time.Time
	To     time.Time
	Err    error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregation for %s [%s, %s): %v",
		e.SetKey, e.From.Format("2006-01-02"), e.To.Format("2006-01-02"), e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }
