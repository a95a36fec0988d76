package navigator

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"

	"curatorscan/internal/crawl"
)

// StaticConfig controls the plain-HTTP client.
type StaticConfig struct {
	UserAgent string
	Timeout   time.Duration
	QPS       float64
}

// StaticClient fetches pages without a browser. Profiles that render
// server-side do not need Chrome, and a plain GET is an order of magnitude
// cheaper per target.
type StaticClient struct {
	cfg     StaticConfig
	base    *colly.Collector
	limiter *rate.Limiter
}

// NewStatic builds a client with a pooled HTTP transport shared by all
// handles.
func NewStatic(cfg StaticConfig) *StaticClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.QPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.QPS), 1)
	}
	return &StaticClient{cfg: cfg, base: c, limiter: limiter}
}

// NewHandle satisfies Factory. Static handles are stateless and cheap; the
// pool still bounds how many fetches run at once.
func (c *StaticClient) NewHandle(_ context.Context) (crawl.Handle, error) {
	return &staticHandle{client: c}, nil
}

// Close satisfies the same shape as Browser.Close.
func (c *StaticClient) Close() error {
	return nil
}

type staticHandle struct {
	client *StaticClient
}

// Navigate executes one GET through a collector cloned from the shared
// base, so per-fetch callbacks never leak between targets.
func (h *staticHandle) Navigate(ctx context.Context, target crawl.Target) (crawl.Page, error) {
	if err := h.client.limiter.Wait(ctx); err != nil {
		return crawl.Page{}, fmt.Errorf("rate limit wait: %w", err)
	}

	collector := h.client.base.Clone()
	// The request runs under the caller's context so cancellation aborts
	// the fetch itself, not just the wait for it.
	collector.Context = ctx

	var (
		page     crawl.Page
		status   int
		visitErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		page = crawl.Page{
			URL:        target.URL,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		visitErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target.URL)
	}()

	select {
	case <-ctx.Done():
		return crawl.Page{}, fmt.Errorf("static fetch canceled: %w", ctx.Err())
	case err := <-done:
		if statusErr := statusError(target.URL, status); statusErr != nil {
			return crawl.Page{}, statusErr
		}
		if err != nil {
			return crawl.Page{}, fmt.Errorf("visit %s: %w", target.URL, err)
		}
		if visitErr != nil {
			return crawl.Page{}, fmt.Errorf("fetch %s: %w", target.URL, visitErr)
		}
		return page, nil
	}
}

// Close is a no-op; static handles hold no per-handle resources.
func (h *staticHandle) Close() error {
	return nil
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
