// Package batch coordinates bounded-concurrency, rate-limited fetching of
// many URLs, isolating per-item failures from the batch as a whole.
package batch

import (
	"errors"
	"fmt"
	"time"
)

// Default execution policy, applied by Options.withDefaults.
const (
	DefaultMaxConcurrent  = 5
	DefaultRatePerSecond  = 10
	DefaultPerItemTimeout = 30 * time.Second
)

// ErrNoURLs is returned when Run is called with an empty URL list.
var ErrNoURLs = errors.New("no URLs to fetch")

// FailFastError is returned when fail-fast is requested and at least one
// item failed. URL names the first failure in input order.
type FailFastError struct {
	URL string
}

func (e *FailFastError) Error() string {
	return fmt.Sprintf("batch fetch failed (fail_fast): %s", e.URL)
}

// Options controls one batch invocation. The zero value is not usable
// directly; use DefaultOptions or rely on Run's normalization.
type Options struct {
	// MaxConcurrent bounds in-flight fetches. <= 0 means DefaultMaxConcurrent.
	MaxConcurrent int
	// RatePerSecond sets the shared token bucket rate and burst. nil means
	// DefaultRatePerSecond; pointing at zero or a negative value disables
	// rate limiting entirely.
	RatePerSecond *int
	// PerItemTimeout bounds each item's full request/response cycle.
	// <= 0 means DefaultPerItemTimeout.
	PerItemTimeout time.Duration
	// FailFast turns the first item failure into a batch-level error.
	FailFast bool
}

// DefaultOptions returns the standard execution policy.
func DefaultOptions() Options {
	return Options{
		MaxConcurrent:  DefaultMaxConcurrent,
		RatePerSecond:  Rate(DefaultRatePerSecond),
		PerItemTimeout: DefaultPerItemTimeout,
	}
}

// Rate is a convenience for populating Options.RatePerSecond.
func Rate(perSecond int) *int {
	return &perSecond
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = DefaultMaxConcurrent
	}
	if o.RatePerSecond == nil {
		o.RatePerSecond = Rate(DefaultRatePerSecond)
	}
	if o.PerItemTimeout <= 0 {
		o.PerItemTimeout = DefaultPerItemTimeout
	}
	return o
}

// ItemResult is the outcome of fetching one input URL. Exactly one of
// Content (with Success) or Error (without) is set; Status is 0 when no
// HTTP response was obtained.
type ItemResult struct {
	URL            string `json:"url"`
	Status         int    `json:"status"`
	Success        bool   `json:"success"`
	Content        string `json:"content,omitempty"`
	Error          string `json:"error,omitempty"`
	ResponseTimeMS int64  `json:"response_time_ms"`
	ContentLength  *int   `json:"content_length,omitempty"`
}

// Stats summarizes a completed batch.
type Stats struct {
	Total             int   `json:"total"`
	Success           int   `json:"success"`
	Failed            int   `json:"failed"`
	AvgResponseTimeMS int64 `json:"avg_response_time_ms"`
	TotalBytes        int   `json:"total_bytes"`
	TotalTimeMS       int64 `json:"total_time_ms"`
}

// Report carries per-item results in input order plus derived statistics.
type Report struct {
	Items []ItemResult `json:"results"`
	Stats Stats        `json:"stats"`
}
