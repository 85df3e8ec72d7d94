package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"quotewire/internal/metrics"
)

// Kind classifies why a fetch failed.
type Kind string

const (
	KindTimeout    Kind = "timeout"
	KindHTTPStatus Kind = "http_status"
	KindNetwork    Kind = "network"
)

// maxBodyBytes caps how much of a page is read.
const maxBodyBytes = 8 << 20

// Error is returned once every attempt for a URL has failed.
type Error struct {
	URL        string
	Kind       Kind
	StatusCode int
	Attempts   int
	Err        error
}

func (e *Error) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("fetch %s: http %d after %d attempts", e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("fetch %s: %s after %d attempts: %v", e.URL, e.Kind, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Permanent reports whether the page is gone for good. Retrying it on a
// later run would give the same answer.
func (e *Error) Permanent() bool {
	return e.Kind == KindHTTPStatus && (e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone)
}

// Fetcher performs GET requests with a per-request timeout, a bounded retry
// budget and user agent rotation.
type Fetcher struct {
	client      *http.Client
	logger      *zap.Logger
	metrics     *metrics.Metrics
	userAgents  []string
	timeout     time.Duration
	maxAttempts int
	baseDelay   time.Duration
	sleep       func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	uaIndex int
}

type Option func(*Fetcher)

func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

func WithRetry(attempts int, baseDelay time.Duration) Option {
	return func(f *Fetcher) {
		if attempts > 0 {
			f.maxAttempts = attempts
		}
		f.baseDelay = baseDelay
	}
}

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// NewFetcher builds a fetcher rotating through userAgents in order.
func NewFetcher(userAgents []string, logger *zap.Logger, opts ...Option) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(userAgents) == 0 {
		userAgents = []string{"Mozilla/5.0 (compatible; quotewire/1.0)"}
	}
	f := &Fetcher{
		client:      &http.Client{},
		logger:      logger,
		userAgents:  userAgents,
		timeout:     10 * time.Second,
		maxAttempts: 3,
		baseDelay:   2 * time.Second,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the response body of url. A 403 switches to the next user
// agent and retries straight away; other failures wait attempt*baseDelay.
// 404 and 410 are not retried.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	logger := f.logger.With(zap.String("url", url))

	var last *Error
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		ua := f.userAgent(attempt > 1)
		body, ferr := f.do(ctx, url, ua)
		if ferr == nil {
			f.metrics.IncFetch("ok")
			return body, nil
		}
		ferr.Attempts = attempt
		last = ferr

		if ctx.Err() != nil || ferr.Permanent() {
			break
		}
		if attempt == f.maxAttempts {
			break
		}
		f.metrics.IncFetch("retry")

		if ferr.Kind == KindHTTPStatus && ferr.StatusCode == http.StatusForbidden {
			logger.Debug("Blocked, rotating user agent", zap.Int("attempt", attempt))
			continue
		}

		delay := time.Duration(attempt) * f.baseDelay
		logger.Debug("Fetch failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(ferr))
		if err := f.sleep(ctx, delay); err != nil {
			break
		}
	}

	f.metrics.IncFetch("failed")
	return "", last
}

func (f *Fetcher) do(ctx context.Context, url, ua string) (string, *Error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", &Error{URL: url, Kind: KindNetwork, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", classify(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", &Error{
			URL:        url,
			Kind:       KindHTTPStatus,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", classify(url, err)
	}
	return string(raw), nil
}

// userAgent returns the current agent, advancing the cursor first when
// advance is set.
func (f *Fetcher) userAgent(advance bool) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if advance {
		f.uaIndex = (f.uaIndex + 1) % len(f.userAgents)
	}
	return f.userAgents[f.uaIndex]
}

func classify(url string, err error) *Error {
	kind := KindNetwork
	var netErr interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &Error{URL: url, Kind: kind, Err: err}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
