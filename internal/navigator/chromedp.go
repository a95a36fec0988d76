package navigator

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"curatorscan/internal/crawl"
)

// Defaults for navigation. The timeout and retry cadence mirror what the
// target sites tolerate in practice.
const (
	DefaultNavigationTimeout = 30 * time.Second
	DefaultMaxScrolls        = 20
	// scrollStableRounds ends a scroll-until-end pass once the document
	// height stops growing for this many consecutive rounds.
	scrollStableRounds = 3
	// scrollHardCap bounds scroll-until-end on pages that grow forever.
	scrollHardCap = 500
	scrollSettle  = 250 * time.Millisecond
)

// BrowserConfig controls the shared headless browser and its tabs.
type BrowserConfig struct {
	Headless          bool
	UserAgent         string
	NavigationTimeout time.Duration
	// ScrollUntilEnd keeps scrolling until the page stops growing instead
	// of stopping after MaxScrolls rounds.
	ScrollUntilEnd bool
	MaxScrolls     int
	// QPS throttles navigations across all tabs. Zero means unlimited.
	QPS float64
}

// Browser owns one headless Chrome process. Each handle it creates is a
// long-lived tab inside that process, so tabs share the browser's cookie
// and cache state but navigate independently.
type Browser struct {
	cfg     BrowserConfig
	limiter *rate.Limiter
	logger  *zap.Logger

	allocCtx    context.Context
	allocStop   context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc
}

// NewBrowser starts the allocator for a headless Chrome instance. The
// process itself launches lazily with the first tab.
func NewBrowser(cfg BrowserConfig, logger *zap.Logger) (*Browser, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = DefaultNavigationTimeout
	}
	if cfg.MaxScrolls <= 0 {
		cfg.MaxScrolls = DefaultMaxScrolls
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocStop := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserStop := chromedp.NewContext(allocCtx)

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.QPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.QPS), 1)
	}

	return &Browser{
		cfg:         cfg,
		limiter:     limiter,
		logger:      logger,
		allocCtx:    allocCtx,
		allocStop:   allocStop,
		browserCtx:  browserCtx,
		browserStop: browserStop,
	}, nil
}

// NewHandle opens a tab. Satisfies Factory.
func (b *Browser) NewHandle(ctx context.Context) (crawl.Handle, error) {
	if err := b.browserCtx.Err(); err != nil {
		return nil, fmt.Errorf("browser unavailable: %w", err)
	}
	tabCtx, tabStop := chromedp.NewContext(b.browserCtx)
	t := &tab{browser: b, ctx: tabCtx, stop: tabStop}

	// Force the target to exist now so a broken Chrome install fails the
	// first Acquire instead of the first Navigate.
	startCtx, cancel := context.WithTimeout(tabCtx, b.cfg.NavigationTimeout)
	defer cancel()
	if err := chromedp.Run(startCtx); err != nil {
		tabStop()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return t, nil
}

// Close tears down the browser process and every tab in it.
func (b *Browser) Close() error {
	b.browserStop()
	b.allocStop()
	return nil
}

type tab struct {
	browser *Browser
	ctx     context.Context
	stop    context.CancelFunc
}

// Navigate loads the target in this tab, scrolls to materialize lazy
// content, and returns the rendered DOM. Status-derived errors wrap the
// sentinels in the crawl package; a dead tab wraps ErrHandleCorrupted.
func (t *tab) Navigate(ctx context.Context, target crawl.Target) (crawl.Page, error) {
	if err := t.browser.limiter.Wait(ctx); err != nil {
		return crawl.Page{}, fmt.Errorf("rate limit wait: %w", err)
	}

	runCtx, cancel := context.WithTimeout(t.ctx, t.browser.cfg.NavigationTimeout)
	defer cancel()
	// Propagate caller cancellation into the tab-scoped run context.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	meta := newResponseMeta()
	chromedp.ListenTarget(runCtx, meta.captureEvent)

	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		t.browser.networkSetupAction(),
		chromedp.Navigate(target.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		t.browser.scrollAction(),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if t.ctx.Err() != nil {
			return crawl.Page{}, fmt.Errorf("tab died navigating %s: %w", target.URL, crawl.ErrHandleCorrupted)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return crawl.Page{}, fmt.Errorf("navigate %s: %w", target.URL, ctxErr)
		}
		return crawl.Page{}, fmt.Errorf("navigate %s: %w", target.URL, err)
	}

	status, respURL := meta.snapshot(target.URL, finalURL)
	if err := statusError(target.URL, status); err != nil {
		return crawl.Page{}, err
	}
	return crawl.Page{
		URL:        target.URL,
		FinalURL:   respURL,
		StatusCode: status,
		Body:       []byte(html),
	}, nil
}

// Close destroys the tab. The browser process stays up.
func (t *tab) Close() error {
	t.stop()
	return nil
}

func (b *Browser) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// scrollAction pushes the viewport to the bottom repeatedly so virtualized
// listings render their rows. In scroll-until-end mode it stops once the
// document height is stable for scrollStableRounds rounds.
func (b *Browser) scrollAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		rounds := b.cfg.MaxScrolls
		if b.cfg.ScrollUntilEnd {
			rounds = scrollHardCap
		}
		const js = `(() => { window.scrollTo(0, document.body.scrollHeight); return document.body.scrollHeight; })()`

		lastHeight := -1
		stable := 0
		for i := 0; i < rounds; i++ {
			var height int
			if err := chromedp.Evaluate(js, &height).Do(ctx); err != nil {
				return fmt.Errorf("scroll page: %w", err)
			}
			select {
			case <-time.After(scrollSettle):
			case <-ctx.Done():
				return ctx.Err()
			}
			if !b.cfg.ScrollUntilEnd {
				continue
			}
			if height == lastHeight {
				if stable++; stable >= scrollStableRounds {
					return nil
				}
			} else {
				stable = 0
			}
			lastHeight = height
		}
		return nil
	})
}

// statusError maps an HTTP status to the crawl error taxonomy. 404 and 410
// are confirmed-missing, 429 is an explicit back-off request, and 5xx is a
// transient upstream failure.
func statusError(url string, status int) error {
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return fmt.Errorf("navigate %s: status %d: %w", url, status, crawl.ErrProfileNotFound)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("navigate %s: %w", url, crawl.ErrRateLimited)
	case status >= 500:
		return fmt.Errorf("navigate %s: upstream status %d", url, status)
	default:
		return nil
	}
}

// responseMeta records the main document response observed on the CDP event
// stream so the page's real status code survives redirects.
type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(resp.Response.Status)
	m.url = resp.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) snapshot(requestURL, finalURL string) (int, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	url := m.url
	if url == "" {
		url = finalURL
	}
	if url == "" {
		url = requestURL
	}
	status := m.status
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}
