package fetch

import (
	"compress/gzip"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"

	"github.com/andybalholm/brotli"
)

const maxBodyBytes = 16 << 20

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

// HTTPConfig holds request settings for HTTPFetcher.
type HTTPConfig struct {
	Policy     Policy   `yaml:",inline"`
	UserAgents []string `yaml:"user_agents"`
	Referer    string   `yaml:"referer" default:"https://www.google.com/"`
}

// HTTPFetcher issues plain GET requests with browser-like headers.
type HTTPFetcher struct {
	retrier
	client     *http.Client
	userAgents []string
	referer    string
}

// NewHTTP creates a fetcher. client may be nil.
func NewHTTP(cfg HTTPConfig, client *http.Client, opts ...Option) *HTTPFetcher {
	if client == nil {
		client = &http.Client{
			Timeout: cfg.Policy.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		}
	}
	uas := cfg.UserAgents
	if len(uas) == 0 {
		uas = defaultUserAgents
	}

	f := &HTTPFetcher{
		retrier:    newRetrier(cfg.Policy),
		client:     client,
		userAgents: uas,
		referer:    cfg.Referer,
	}
	for _, opt := range opts {
		opt(&f.retrier)
	}
	return f
}

// Fetch retrieves url, retrying per the policy. Any non-200 status is retried.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	return f.do(ctx, url, func(ctx context.Context) (*Page, error) {
		return f.get(ctx, url)
	})
}

func (f *HTTPFetcher) get(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	f.setBrowserHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	reader, err := decodedBody(resp)
	if err != nil {
		return nil, fmt.Errorf("create reader: %w", err)
	}
	body, err := io.ReadAll(io.LimitReader(reader, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Page{URL: url, StatusCode: resp.StatusCode, Body: body}, nil
}

func (f *HTTPFetcher) setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", f.userAgents[rand.IntN(len(f.userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Cache-Control", "max-age=0")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	if f.referer != "" {
		req.Header.Set("Referer", f.referer)
	}
}

// decodedBody unwraps the response according to Content-Encoding. Setting
// Accept-Encoding ourselves disables net/http's transparent gzip handling.
func decodedBody(resp *http.Response) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "br":
		return brotli.NewReader(resp.Body), nil
	case "deflate":
		return zlib.NewReader(resp.Body)
	default:
		return resp.Body, nil
	}
}

// Ensure interface compliance.
var _ Fetcher = (*HTTPFetcher)(nil)
