// Package fetcher defines the single-resource retrieval contract shared by
// the batch engine and its transport implementations.
package fetcher

import (
	"context"
	"fmt"
	"time"
)

// Request captures everything needed to fetch one URL.
type Request struct {
	URL string
	// Timeout covers the entire request/response cycle: connect, headers,
	// and body read. Zero means the implementation's default.
	Timeout time.Duration
	Headers map[string]string
}

// Response is the result returned by a Fetcher implementation.
type Response struct {
	URL           string
	StatusCode    int
	Body          []byte
	ContentLength int
	Duration      time.Duration
}

// Fetcher fetches a URL and returns the body plus metadata. Implementations
// must be safe for concurrent use; the batch engine shares one instance
// across all workers.
type Fetcher interface {
	Fetch(ctx context.Context, request Request) (Response, error)
}

// StatusError reports a response that arrived but carried a non-2xx status.
// The orchestrator uses the code to fill the item result even on failure.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}
