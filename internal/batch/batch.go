package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/webharvest/batchfetch/internal/fetcher"
	"github.com/webharvest/batchfetch/internal/governor"
	"github.com/webharvest/batchfetch/internal/metrics"
	"github.com/webharvest/batchfetch/internal/progress"
	"github.com/webharvest/batchfetch/internal/ratelimit"
)

// Runner executes batches against a shared Fetcher. The limiter and
// governor are created fresh per invocation; a Runner itself holds no
// cross-batch state and is safe for concurrent use.
type Runner struct {
	fetcher fetcher.Fetcher
	logger  *zap.Logger
	hub     *progress.Hub
}

// New constructs a Runner. hub may be nil when no progress sinks are wired.
func New(f fetcher.Fetcher, logger *zap.Logger, hub *progress.Hub) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{fetcher: f, logger: logger, hub: hub}
}

// Run fetches every URL under the supplied options and returns a Report
// whose items match the input order. Individual failures never abort the
// batch; Run itself fails only on empty input, context cancellation, or
// fail-fast.
func (r *Runner) Run(ctx context.Context, urls []string, opts Options) (*Report, error) {
	return r.run(ctx, "", urls, opts)
}

// RunWithID is Run with a caller-assigned batch ID attached to progress
// events and log lines.
func (r *Runner) RunWithID(ctx context.Context, batchID string, urls []string, opts Options) (*Report, error) {
	return r.run(ctx, batchID, urls, opts)
}

func (r *Runner) run(ctx context.Context, batchID string, urls []string, opts Options) (*Report, error) {
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}
	opts = opts.withDefaults()

	start := time.Now()
	r.logger.Info("batch fetch started",
		zap.String("batch_id", batchID),
		zap.Int("urls", len(urls)),
		zap.Int("max_concurrent", opts.MaxConcurrent),
		zap.Int("rate_per_second", *opts.RatePerSecond),
	)

	limiter := ratelimit.New(*opts.RatePerSecond)
	gov := governor.New(opts.MaxConcurrent)
	items := make([]ItemResult, len(urls))

	g := new(errgroup.Group)
	for index, url := range urls {
		g.Go(func() error {
			return r.fetchOne(ctx, batchID, index, url, opts, limiter, gov, items)
		})
	}
	if err := g.Wait(); err != nil {
		metrics.ObserveBatch("canceled")
		return nil, fmt.Errorf("batch aborted: %w", err)
	}

	totalElapsed := time.Since(start)

	// Fail-fast checks after the whole batch has drained: it short-circuits
	// the return value, not the wall clock. The first failure in input
	// order wins regardless of completion order.
	if opts.FailFast {
		for _, item := range items {
			if !item.Success {
				metrics.ObserveBatch("fail_fast")
				r.logger.Warn("batch failed fast",
					zap.String("batch_id", batchID),
					zap.String("url", item.URL),
				)
				return nil, &FailFastError{URL: item.URL}
			}
		}
	}

	stats := Aggregate(items, totalElapsed)
	metrics.ObserveBatch("ok")
	r.logger.Info("batch fetch completed",
		zap.String("batch_id", batchID),
		zap.Int("success", stats.Success),
		zap.Int("failed", stats.Failed),
		zap.Int64("total_time_ms", stats.TotalTimeMS),
	)

	return &Report{Items: items, Stats: stats}, nil
}

// fetchOne runs one unit of work: slot, token, fetch, result. It writes
// only its own index of items and returns an error solely when the context
// dies while waiting for admission.
func (r *Runner) fetchOne(
	ctx context.Context,
	batchID string,
	index int,
	url string,
	opts Options,
	limiter *ratelimit.Limiter,
	gov *governor.Governor,
	items []ItemResult,
) error {
	if err := gov.Acquire(ctx); err != nil {
		return err
	}
	defer gov.Release()

	metrics.IncInflight()
	defer metrics.DecInflight()

	// Item time starts once a slot is held, so it covers the rate limiter
	// wait plus the request itself.
	itemStart := time.Now()

	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	resp, err := r.safeFetch(ctx, url, opts.PerItemTimeout)
	elapsed := time.Since(itemStart)

	items[index] = buildItemResult(url, resp, err, elapsed)
	r.emit(batchID, index, items[index], elapsed)
	return nil
}

// safeFetch converts a panicking fetcher into a per-item failure so slot and
// token accounting stays intact.
func (r *Runner) safeFetch(ctx context.Context, url string, timeout time.Duration) (resp fetcher.Response, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("fetch panicked: %v", rec)
		}
	}()
	return r.fetcher.Fetch(ctx, fetcher.Request{URL: url, Timeout: timeout})
}

func buildItemResult(url string, resp fetcher.Response, err error, elapsed time.Duration) ItemResult {
	if err != nil {
		status := 0
		var statusErr *fetcher.StatusError
		if errors.As(err, &statusErr) {
			status = statusErr.StatusCode
		}
		return ItemResult{
			URL:            url,
			Status:         status,
			Success:        false,
			Error:          err.Error(),
			ResponseTimeMS: elapsed.Milliseconds(),
		}
	}

	length := resp.ContentLength
	return ItemResult{
		URL:            url,
		Status:         resp.StatusCode,
		Success:        true,
		Content:        string(resp.Body),
		ResponseTimeMS: elapsed.Milliseconds(),
		ContentLength:  &length,
	}
}

func (r *Runner) emit(batchID string, index int, item ItemResult, elapsed time.Duration) {
	if r.hub == nil {
		return
	}
	bytes := 0
	if item.ContentLength != nil {
		bytes = *item.ContentLength
	}
	r.hub.Emit(progress.Event{
		BatchID:    batchID,
		Index:      index,
		URL:        item.URL,
		StatusCode: item.Status,
		Success:    item.Success,
		Bytes:      bytes,
		Duration:   elapsed,
		Error:      item.Error,
		Timestamp:  time.Now(),
	})
}
