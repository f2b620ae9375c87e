package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sjsage522/bidnoticeworker/helpers"
	"sjsage522/bidnoticeworker/logger"
	apperrors "sjsage522/bidnoticeworker/pkg/errors"
	"sjsage522/bidnoticeworker/services/cache"

	"github.com/gocolly/colly/v2"
)

// Fetcher retrieves a page without running scripts
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*helpers.Page, error)
}

// rateGate blocks hosts that answered 429/430 for blockTime
type rateGate struct {
	cache     cache.CacheService
	blockTime time.Duration
}

func (g rateGate) check(host string) error {
	if g.cache == nil {
		return nil
	}
	if _, err := g.cache.Get(cache.RateLimitKey(host)); err == nil {
		return apperrors.NewRateLimit(host, g.blockTime)
	}
	return nil
}

func (g rateGate) observe(host string, err error) {
	if g.cache == nil || err == nil || !apperrors.IsType(err, apperrors.ErrorTypeRateLimit) {
		return
	}
	seconds := []byte(strconv.Itoa(int(g.blockTime / time.Second)))
	if setErr := g.cache.Set(cache.RateLimitKey(host), seconds, g.blockTime); setErr != nil {
		logger.ForCache().Warn().Err(setErr).Str("host", host).Msg("Failed to set rate limit block")
		return
	}
	logger.ForCache().Info().Str("host", host).Dur("block", g.blockTime).Msg("Host rate limited, blocking requests")
}

// HTTPFetcher fetches pages with net/http and browser-like headers
type HTTPFetcher struct {
	client *http.Client
	gate   rateGate
}

// NewHTTPFetcher creates a fetcher. cacheSvc may be nil to disable the
// rate limit block.
func NewHTTPFetcher(client *http.Client, cacheSvc cache.CacheService, blockTime time.Duration) *HTTPFetcher {
	return &HTTPFetcher{client: client, gate: rateGate{cache: cacheSvc, blockTime: blockTime}}
}

// Fetch implements Fetcher
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*helpers.Page, error) {
	host := helpers.HostOf(url)
	if err := f.gate.check(host); err != nil {
		return nil, err
	}

	page, err := helpers.FetchWithRandomHeaders(ctx, f.client, url)
	f.gate.observe(host, err)
	return page, err
}

// CollyFetcher fetches pages with a colly collector. A collector is built per
// request so that no visit state leaks between organizations.
type CollyFetcher struct {
	Timeout  time.Duration
	ProxyURL string
	gate     rateGate
}

// NewCollyFetcher creates a colly based fetcher
func NewCollyFetcher(timeout time.Duration, proxyURL string, cacheSvc cache.CacheService, blockTime time.Duration) *CollyFetcher {
	return &CollyFetcher{
		Timeout:  timeout,
		ProxyURL: proxyURL,
		gate:     rateGate{cache: cacheSvc, blockTime: blockTime},
	}
}

func (f *CollyFetcher) collector(ctx context.Context) (*colly.Collector, error) {
	c := colly.NewCollector(
		colly.UserAgent(helpers.RandomUserAgent()),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(f.Timeout)
	if f.ProxyURL != "" {
		if err := c.SetProxy(f.ProxyURL); err != nil {
			return nil, fmt.Errorf("invalid proxy url %q: %w", f.ProxyURL, err)
		}
	}
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")
	})
	return c, nil
}

// Fetch implements Fetcher
func (f *CollyFetcher) Fetch(ctx context.Context, url string) (*helpers.Page, error) {
	host := helpers.HostOf(url)
	if err := f.gate.check(host); err != nil {
		return nil, err
	}

	c, err := f.collector(ctx)
	if err != nil {
		return nil, apperrors.NewConfiguration("colly fetcher", err)
	}

	var (
		page     *helpers.Page
		fetchErr error
	)
	c.OnResponse(func(r *colly.Response) {
		ct := r.Headers.Get("Content-Type")
		body := r.Body
		// colly already decodes bodies whose header names a charset
		if !strings.Contains(strings.ToLower(ct), "charset=") {
			if body, err = helpers.ToUTF8(r.Body, ct); err != nil {
				fetchErr = err
				return
			}
		}
		page = &helpers.Page{
			Body:        body,
			FinalURL:    r.Request.URL.String(),
			ContentType: ct,
			StatusCode:  r.StatusCode,
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		switch {
		case r != nil && (r.StatusCode == http.StatusTooManyRequests || r.StatusCode == 430):
			fetchErr = apperrors.NewRateLimit(host, 0)
		case r != nil && r.StatusCode != 0:
			fetchErr = apperrors.NewNetwork(host, fmt.Sprintf("fetch %s unexpected status code: %d", url, r.StatusCode), err)
		default:
			fetchErr = apperrors.NewNetwork(host, "request failed", err)
		}
	})

	if err := c.Visit(url); err != nil && fetchErr == nil {
		fetchErr = apperrors.NewNetwork(host, "visit failed", err)
	}
	if fetchErr == nil && page == nil {
		fetchErr = apperrors.NewNetwork(host, "no response received", ctx.Err())
	}

	f.gate.observe(host, fetchErr)
	if fetchErr != nil {
		return nil, fetchErr
	}
	return page, nil
}

// ErrUnknownBackend is returned for an unsupported FETCH_BACKEND
var ErrUnknownBackend = errors.New("unknown fetch backend")

// NewFetcher selects the lightweight fetch backend by name (http or colly)
func NewFetcher(backend string, timeout time.Duration, proxyURL string, cacheSvc cache.CacheService, blockTime time.Duration) (Fetcher, error) {
	switch backend {
	case "", "http":
		client, err := helpers.NewHTTPClient(timeout, proxyURL)
		if err != nil {
			return nil, err
		}
		return NewHTTPFetcher(client, cacheSvc, blockTime), nil
	case "colly":
		return NewCollyFetcher(timeout, proxyURL, cacheSvc, blockTime), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, backend)
}
