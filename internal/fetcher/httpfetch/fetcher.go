// Package httpfetch implements fetcher.Fetcher over net/http with a pooled
// transport shared by all concurrent callers.
package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/webharvest/batchfetch/internal/fetcher"
)

const defaultTimeout = 30 * time.Second

// DefaultUserAgent identifies unattended fetches.
const DefaultUserAgent = "batchfetch/1.0 (+https://github.com/webharvest/batchfetch)"

// Config controls client behavior.
type Config struct {
	UserAgent string
	// MaxRedirects caps redirect chains. Zero means the default of 10.
	MaxRedirects int
}

// Fetcher issues single GET requests. Connection pooling lives in the
// transport, so one Fetcher serves any number of goroutines.
type Fetcher struct {
	cfg    Config
	client *http.Client
}

// New builds a Fetcher with a pooled transport.
func New(cfg Config) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}
	client := &http.Client{
		Transport: newHTTPTransport(),
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return &Fetcher{cfg: cfg, client: client}
}

// Fetch executes a single HTTP GET. The request timeout bounds the whole
// cycle including the body read.
func (f *Fetcher) Fetch(ctx context.Context, request fetcher.Request) (fetcher.Response, error) {
	timeout := request.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, request.URL, nil)
	if err != nil {
		return fetcher.Response{}, fmt.Errorf("build request for %s: %w", request.URL, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	for key, value := range request.Headers {
		req.Header.Set(key, value)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fetcher.Response{}, fmt.Errorf("fetch %s: %w", request.URL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fetcher.Response{}, &fetcher.StatusError{URL: request.URL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fetcher.Response{}, fmt.Errorf("read body of %s: %w", request.URL, err)
	}

	return fetcher.Response{
		URL:           resp.Request.URL.String(),
		StatusCode:    resp.StatusCode,
		Body:          body,
		ContentLength: len(body),
		Duration:      time.Since(start),
	}, nil
}

// IsTimeout reports whether err came from the per-request deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
