package batch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/webharvest/batchfetch/internal/fetcher"
	"github.com/webharvest/batchfetch/internal/fetcher/httpfetch"
)

type stubFetcher struct {
	fn func(ctx context.Context, req fetcher.Request) (fetcher.Response, error)
}

func (s stubFetcher) Fetch(ctx context.Context, req fetcher.Request) (fetcher.Response, error) {
	return s.fn(ctx, req)
}

func okFetcher(body string) stubFetcher {
	return stubFetcher{fn: func(_ context.Context, req fetcher.Request) (fetcher.Response, error) {
		return fetcher.Response{
			URL:           req.URL,
			StatusCode:    http.StatusOK,
			Body:          []byte(body),
			ContentLength: len(body),
		}, nil
	}}
}

func newTestRunner(f fetcher.Fetcher) *Runner {
	return New(f, zap.NewNop(), nil)
}

func TestRunEmptyInput(t *testing.T) {
	t.Parallel()

	runner := newTestRunner(okFetcher("x"))
	report, err := runner.Run(context.Background(), nil, DefaultOptions())
	require.ErrorIs(t, err, ErrNoURLs)
	assert.Nil(t, report)
}

func TestRunPreservesInputOrder(t *testing.T) {
	t.Parallel()

	// Later items finish first, so result ordering cannot come from
	// completion order.
	f := stubFetcher{fn: func(_ context.Context, req fetcher.Request) (fetcher.Response, error) {
		if strings.HasSuffix(req.URL, "/0") {
			time.Sleep(50 * time.Millisecond)
		}
		body := "body of " + req.URL
		return fetcher.Response{
			URL:           req.URL,
			StatusCode:    http.StatusOK,
			Body:          []byte(body),
			ContentLength: len(body),
		}, nil
	}}

	urls := make([]string, 8)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://example.com/%d", i)
	}

	runner := newTestRunner(f)
	report, err := runner.Run(context.Background(), urls, Options{MaxConcurrent: 8})
	require.NoError(t, err)
	require.Len(t, report.Items, len(urls))
	for i, item := range report.Items {
		assert.Equal(t, urls[i], item.URL)
		assert.True(t, item.Success)
	}
}

func TestRunScenarioByteTotals(t *testing.T) {
	t.Parallel()

	sizes := []int{10, 20, 30, 40, 50}
	f := stubFetcher{fn: func(_ context.Context, req fetcher.Request) (fetcher.Response, error) {
		var idx int
		_, err := fmt.Sscanf(req.URL, "https://example.com/%d", &idx)
		if err != nil {
			return fetcher.Response{}, err
		}
		body := strings.Repeat("a", sizes[idx])
		return fetcher.Response{
			URL:           req.URL,
			StatusCode:    http.StatusOK,
			Body:          []byte(body),
			ContentLength: len(body),
		}, nil
	}}

	urls := make([]string, len(sizes))
	for i := range urls {
		urls[i] = fmt.Sprintf("https://example.com/%d", i)
	}

	runner := newTestRunner(f)
	report, err := runner.Run(context.Background(), urls, Options{MaxConcurrent: 2})
	require.NoError(t, err)

	assert.Equal(t, 5, report.Stats.Total)
	assert.Equal(t, 5, report.Stats.Success)
	assert.Equal(t, 0, report.Stats.Failed)
	assert.Equal(t, 150, report.Stats.TotalBytes)
	assert.Equal(t, report.Stats.Total, report.Stats.Success+report.Stats.Failed)
	assert.Equal(t, len(report.Items), report.Stats.Total)
}

func TestRunIsolatesItemFailures(t *testing.T) {
	t.Parallel()

	f := stubFetcher{fn: func(_ context.Context, req fetcher.Request) (fetcher.Response, error) {
		if strings.Contains(req.URL, "bad") {
			return fetcher.Response{}, &fetcher.StatusError{URL: req.URL, StatusCode: http.StatusNotFound}
		}
		return fetcher.Response{URL: req.URL, StatusCode: http.StatusOK, Body: []byte("ok"), ContentLength: 2}, nil
	}}

	urls := []string{"https://a.test/", "https://bad.test/", "https://c.test/"}
	runner := newTestRunner(f)
	report, err := runner.Run(context.Background(), urls, Options{MaxConcurrent: 3})
	require.NoError(t, err)

	require.Len(t, report.Items, 3)
	assert.True(t, report.Items[0].Success)
	assert.False(t, report.Items[1].Success)
	assert.True(t, report.Items[2].Success)

	failed := report.Items[1]
	assert.Equal(t, http.StatusNotFound, failed.Status)
	assert.NotEmpty(t, failed.Error)
	assert.Empty(t, failed.Content)
	assert.Nil(t, failed.ContentLength)

	assert.Equal(t, 2, report.Stats.Success)
	assert.Equal(t, 1, report.Stats.Failed)
}

func TestRunFailFast(t *testing.T) {
	t.Parallel()

	f := stubFetcher{fn: func(_ context.Context, req fetcher.Request) (fetcher.Response, error) {
		if strings.Contains(req.URL, "bad") {
			return fetcher.Response{}, errors.New("connection refused")
		}
		return fetcher.Response{URL: req.URL, StatusCode: http.StatusOK, Body: []byte("ok"), ContentLength: 2}, nil
	}}

	urls := []string{"https://a.test/", "https://bad.test/", "https://c.test/"}
	runner := newTestRunner(f)

	report, err := runner.Run(context.Background(), urls, Options{MaxConcurrent: 3, FailFast: true})
	require.Error(t, err)
	assert.Nil(t, report)

	var ffErr *FailFastError
	require.ErrorAs(t, err, &ffErr)
	assert.Equal(t, "https://bad.test/", ffErr.URL)

	// Same input without fail-fast succeeds with the failure recorded.
	report, err = runner.Run(context.Background(), urls, Options{MaxConcurrent: 3})
	require.NoError(t, err)
	assert.False(t, report.Items[1].Success)
	assert.Equal(t, 0, report.Items[1].Status)
}

func TestRunFailFastReportsFirstInInputOrder(t *testing.T) {
	t.Parallel()

	// Both failures complete, the later one first; input order decides.
	f := stubFetcher{fn: func(_ context.Context, req fetcher.Request) (fetcher.Response, error) {
		if strings.HasSuffix(req.URL, "/1") {
			time.Sleep(30 * time.Millisecond)
			return fetcher.Response{}, errors.New("slow failure")
		}
		if strings.HasSuffix(req.URL, "/3") {
			return fetcher.Response{}, errors.New("fast failure")
		}
		return fetcher.Response{URL: req.URL, StatusCode: http.StatusOK}, nil
	}}

	urls := []string{
		"https://example.com/0",
		"https://example.com/1",
		"https://example.com/2",
		"https://example.com/3",
	}
	runner := newTestRunner(f)
	_, err := runner.Run(context.Background(), urls, Options{MaxConcurrent: 4, FailFast: true})

	var ffErr *FailFastError
	require.ErrorAs(t, err, &ffErr)
	assert.Equal(t, "https://example.com/1", ffErr.URL)
}

func TestRunDuplicateURLsFetchedIndependently(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	f := stubFetcher{fn: func(_ context.Context, req fetcher.Request) (fetcher.Response, error) {
		calls.Add(1)
		return fetcher.Response{URL: req.URL, StatusCode: http.StatusOK, Body: []byte("x"), ContentLength: 1}, nil
	}}

	urls := []string{"https://dup.test/", "https://dup.test/", "https://dup.test/"}
	runner := newTestRunner(f)
	report, err := runner.Run(context.Background(), urls, Options{MaxConcurrent: 3})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, report.Items, 3)
}

func TestRunConcurrencyBound(t *testing.T) {
	t.Parallel()

	var inflight, peak atomic.Int32
	f := stubFetcher{fn: func(_ context.Context, req fetcher.Request) (fetcher.Response, error) {
		cur := inflight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inflight.Add(-1)
		return fetcher.Response{URL: req.URL, StatusCode: http.StatusOK}, nil
	}}

	urls := make([]string, 12)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://example.com/%d", i)
	}

	runner := newTestRunner(f)
	_, err := runner.Run(context.Background(), urls, Options{MaxConcurrent: 3})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestRunRateBound(t *testing.T) {
	t.Parallel()

	f := okFetcher("x")
	urls := make([]string, 15)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://example.com/%d", i)
	}

	runner := newTestRunner(f)
	start := time.Now()
	_, err := runner.Run(context.Background(), urls, Options{MaxConcurrent: 15, RatePerSecond: Rate(10)})
	require.NoError(t, err)

	// 15 items at 10 rps with a burst of 10: the last 5 wait at least
	// ~400ms beyond the initial burst window.
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}

func TestRunDefaultRateApplied(t *testing.T) {
	t.Parallel()

	// Leaving RatePerSecond unset must fall back to the 10 rps default, not
	// run unlimited.
	f := okFetcher("x")
	urls := make([]string, 15)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://example.com/%d", i)
	}

	runner := newTestRunner(f)
	start := time.Now()
	_, err := runner.Run(context.Background(), urls, Options{MaxConcurrent: 15})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}

func TestRunRateLimitDisabled(t *testing.T) {
	t.Parallel()

	f := okFetcher("x")
	urls := make([]string, 20)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://example.com/%d", i)
	}

	runner := newTestRunner(f)
	start := time.Now()
	_, err := runner.Run(context.Background(), urls, Options{MaxConcurrent: 20, RatePerSecond: Rate(0)})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRunItemTimeoutIsNotBatchFailure(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/slow") {
			time.Sleep(500 * time.Millisecond)
		}
		_, _ = w.Write([]byte("hello"))
	}))
	defer ts.Close()

	runner := newTestRunner(httpfetch.New(httpfetch.Config{}))
	urls := []string{ts.URL + "/fast", ts.URL + "/slow"}
	report, err := runner.Run(context.Background(), urls, Options{
		MaxConcurrent:  2,
		PerItemTimeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.True(t, report.Items[0].Success)
	assert.False(t, report.Items[1].Success)
	assert.Equal(t, 0, report.Items[1].Status)
	assert.NotEmpty(t, report.Items[1].Error)
}

func TestRunRecoversPanickingFetcher(t *testing.T) {
	t.Parallel()

	f := stubFetcher{fn: func(_ context.Context, req fetcher.Request) (fetcher.Response, error) {
		if strings.Contains(req.URL, "bad") {
			panic("fetcher blew up")
		}
		return fetcher.Response{URL: req.URL, StatusCode: http.StatusOK}, nil
	}}

	urls := []string{"https://a.test/", "https://bad.test/"}
	runner := newTestRunner(f)
	report, err := runner.Run(context.Background(), urls, Options{MaxConcurrent: 2})
	require.NoError(t, err)

	assert.True(t, report.Items[0].Success)
	assert.False(t, report.Items[1].Success)
	assert.Contains(t, report.Items[1].Error, "panicked")
}

func TestRunCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := newTestRunner(okFetcher("x"))
	urls := make([]string, 5)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://example.com/%d", i)
	}
	// With a dead context the limiter/governor acquires fail and the batch
	// aborts instead of returning a partial report.
	_, err := runner.Run(ctx, urls, Options{MaxConcurrent: 1, RatePerSecond: Rate(1)})
	require.Error(t, err)
}
