package fetch

import (
	"context"
	"fmt"
	"net/http"

	"github.com/chromedp/chromedp"
)

// BrowserConfig configures the headless Chrome fetcher.
type BrowserConfig struct {
	Policy       Policy `yaml:",inline"`
	ChromeBin    string `yaml:"chrome_bin"`
	UserAgent    string `yaml:"user_agent"`
	WaitSelector string `yaml:"wait_selector" default:"body"`
}

// BrowserFetcher renders the page in headless Chrome. It is slower than
// HTTPFetcher but gets through pages that require script execution.
type BrowserFetcher struct {
	retrier
	allocOpts    []chromedp.ExecAllocatorOption
	waitSelector string
}

func NewBrowser(cfg BrowserConfig, opts ...Option) *BrowserFetcher {
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgents[0]
	}
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(ua),
	)
	if cfg.ChromeBin != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(cfg.ChromeBin))
	}
	wait := cfg.WaitSelector
	if wait == "" {
		wait = "body"
	}

	b := &BrowserFetcher{
		retrier:      newRetrier(cfg.Policy),
		allocOpts:    allocOpts,
		waitSelector: wait,
	}
	for _, opt := range opts {
		opt(&b.retrier)
	}
	return b
}

func (b *BrowserFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	return b.do(ctx, url, func(ctx context.Context) (*Page, error) {
		return b.render(ctx, url)
	})
}

func (b *BrowserFetcher) render(ctx context.Context, url string) (*Page, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, b.allocOpts...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelTask()

	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, b.policy.Timeout)
	defer cancelTimeout()

	var html string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady(b.waitSelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", url, err)
	}

	return &Page{URL: url, StatusCode: http.StatusOK, Body: []byte(html)}, nil
}

var _ Fetcher = (*BrowserFetcher)(nil)
