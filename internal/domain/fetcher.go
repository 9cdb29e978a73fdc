package domain

import (
	"context"
	"errors"
)

// ProgressFunc receives incremental byte counts during a fetch.
// totalBytes is zero until the source reports it.
type ProgressFunc func(downloadedBytes, totalBytes int64)

// FetchResult is the outcome of a successful fetch
type FetchResult struct {
	OutputPath string
	FileSize   int64
}

// Fetcher performs the actual transfer of a video. One invocation is
// one attempt; retry policy lives with the caller.
type Fetcher interface {
	Fetch(ctx context.Context, sourceURL, destDir string, onProgress ProgressFunc) (*FetchResult, error)
}

// PermanentError wraps a fetch failure that retrying cannot fix
// (unsupported URL, deleted source). The worker fails such jobs
// immediately instead of requeueing them.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanentFetchError reports whether err is a non-retryable fetch failure
func IsPermanentFetchError(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
