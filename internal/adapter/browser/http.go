package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	// MaxBodyBytes caps HTML reads. Downloads use MaxDownloadBytes.
	MaxBodyBytes     = 2 << 20
	MaxDownloadBytes = 50 << 20
)

// HTTPFetcher fetches pages without rendering them. Requests share one rate
// limiter so a crawl cannot hammer a host.
type HTTPFetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

type HTTPOption func(*HTTPFetcher)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(f *HTTPFetcher) { f.client = c }
}

func WithRateLimit(perSecond float64, burst int) HTTPOption {
	return func(f *HTTPFetcher) { f.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

func WithUserAgent(ua string) HTTPOption {
	return func(f *HTTPFetcher) { f.userAgent = ua }
}

func NewHTTPFetcher(opts ...HTTPOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client:    &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(2), 4),
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	body, err := f.get(ctx, url, MaxBodyBytes)
	if err != nil {
		return "", err
	}
	if len(body) == 0 {
		return "", ErrEmptyPage
	}
	return string(body), nil
}

func (f *HTTPFetcher) Download(ctx context.Context, url string) ([]byte, error) {
	return f.get(ctx, url, MaxDownloadBytes)
}

func (f *HTTPFetcher) get(ctx context.Context, url string, limit int64) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}
