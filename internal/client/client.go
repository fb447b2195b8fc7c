package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/purell"
	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"

	"coinmarket/scraper/internal/cache"
	"coinmarket/scraper/internal/config"
	"coinmarket/scraper/internal/credentials"
	"coinmarket/scraper/internal/domain"
	"coinmarket/scraper/internal/metrics"
	"coinmarket/scraper/internal/retry"
	"coinmarket/scraper/internal/throttle"
)

// Client issues logical fetches against one source. Every physical request,
// including retries and side-channel posts, goes through the same FIFO queue.
type Client interface {
	Source() string
	Fetch(ctx context.Context, url string, opts FetchOptions) (*domain.FetchResult, error)
	PostForm(ctx context.Context, url string, form map[string]string) (*domain.FetchResult, error)
	HasCredentials(ctx context.Context) bool
	Close() error
}

type FetchOptions struct {
	SkipCache bool // neither read nor write the content cache
	Refresh   bool // ignore a cached copy but overwrite it with the new result
	Browser   bool // render through the browser transport
}

type Options struct {
	Source           string
	RequiresAuth     bool
	RequiresBrowser  bool
	CacheTTL         time.Duration
	Timeout          time.Duration
	Retry            retry.Policy
	BlockMarkers     []string
	ChallengeMarkers []string
}

func OptionsFromConfig(src config.SourceConfig, cfg config.FetchConfig) Options {
	return Options{
		Source:          src.Name,
		RequiresAuth:    src.RequiresAuth,
		RequiresBrowser: src.RequiresBrowser,
		CacheTTL:        cfg.CacheTTL,
		Timeout:         cfg.Timeout,
		Retry: retry.Policy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.BaseDelay,
			MaxDelay:    cfg.MaxDelay,
			Jitter:      cfg.Jitter,
		},
		BlockMarkers:     cfg.BlockMarkers,
		ChallengeMarkers: cfg.ChallengeMarkers,
	}
}

type Deps struct {
	HTTP        Transport
	Browser     Transport // optional
	Cache       *cache.Layer[domain.FetchResult]
	Queue       *throttle.Queue
	Credentials credentials.Provider
	Clock       clock.Clock
}

type fetchClient struct {
	opts        Options
	policy      retry.Policy
	http        Transport
	browser     Transport
	cache       *cache.Layer[domain.FetchResult]
	queue       *throttle.Queue
	credentials credentials.Provider
	clock       clock.Clock
}

func New(opts Options, deps Deps) Client {
	c := &fetchClient{
		opts:        opts,
		http:        withTimeout(deps.HTTP, opts.Timeout),
		browser:     deps.Browser,
		cache:       deps.Cache,
		queue:       deps.Queue,
		credentials: deps.Credentials,
		clock:       deps.Clock,
	}
	if c.queue == nil {
		c.queue = throttle.NewQueue(opts.Source, 0)
	}
	if c.credentials == nil {
		c.credentials = credentials.Static("")
	}
	if c.clock == nil {
		c.clock = clock.New()
	}

	c.policy = opts.Retry
	c.policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		metrics.FetchRetriesTotal.WithLabelValues(opts.Source).Inc()
		log.Warnf("🔄 Attempt %d for %s failed, retrying in %v: %v", attempt, opts.Source, delay.Round(time.Millisecond), err)
	}

	return c
}

func (c *fetchClient) Source() string {
	return c.opts.Source
}

func (c *fetchClient) Fetch(ctx context.Context, url string, opts FetchOptions) (*domain.FetchResult, error) {
	req := &Request{URL: url}
	useBrowser := opts.Browser || c.opts.RequiresBrowser

	if c.cache == nil || opts.SkipCache {
		return c.fetchLive(ctx, req, useBrowser)
	}

	key := CacheKey(c.opts.Source, url)

	if opts.Refresh {
		result, err := c.fetchLive(ctx, req, useBrowser)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Store(ctx, key, c.opts.CacheTTL, *result); err != nil {
			log.Warnf("⚠️ %v", err)
		}
		return result, nil
	}

	result, hit, err := c.cache.GetOrFetch(ctx, key, c.opts.CacheTTL, func(ctx context.Context) (domain.FetchResult, error) {
		r, err := c.fetchLive(ctx, req, useBrowser)
		if err != nil {
			return domain.FetchResult{}, err
		}
		return *r, nil
	})
	if err != nil {
		return nil, err
	}

	if hit {
		log.Debugf("Serving %s from cache", url)
	}
	result.FromCache = hit
	return &result, nil
}

// PostForm sends a side-channel form POST. Responses are never cached.
func (c *fetchClient) PostForm(ctx context.Context, url string, form map[string]string) (*domain.FetchResult, error) {
	if form == nil {
		form = map[string]string{}
	}
	return c.fetchLive(ctx, &Request{URL: url, Form: form}, false)
}

func (c *fetchClient) HasCredentials(ctx context.Context) bool {
	cookies, err := c.credentials.Cookies(ctx)
	if err != nil {
		log.Warnf("⚠️ Failed to load cookies for %s: %v", c.opts.Source, err)
		return false
	}
	return cookies != ""
}

func (c *fetchClient) fetchLive(ctx context.Context, req *Request, useBrowser bool) (*domain.FetchResult, error) {
	cookies, err := c.credentials.Cookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load cookies for %s: %w", c.opts.Source, err)
	}
	if cookies == "" && c.opts.RequiresAuth {
		return nil, authError(req.URL, 0, "cookies not configured for source "+c.opts.Source)
	}
	req.Cookies = cookies

	var result *domain.FetchResult
	err = retry.Do(ctx, c.policy, IsRetryable, func(ctx context.Context, _ int) error {
		r, err := c.attempt(ctx, req, useBrowser)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// attempt performs one queued physical request and classifies its outcome.
func (c *fetchClient) attempt(ctx context.Context, req *Request, useBrowser bool) (*domain.FetchResult, error) {
	transport := c.http
	if useBrowser && c.browser != nil {
		transport = c.browser
	}

	resp, err := c.queued(ctx, transport, req)
	if err != nil {
		return nil, err
	}

	// The browser re-render is a physical request of its own and waits for its turn.
	if transport != c.browser && c.browser != nil && req.Form == nil && containsAny(resp.Body, c.opts.ChallengeMarkers) {
		log.Warnf("🧱 JavaScript challenge served for %s, re-rendering in browser", req.URL)
		resp, err = c.queued(ctx, c.browser, req)
		if err != nil {
			return nil, err
		}
	}

	if err := classifyStatus(req.URL, resp.StatusCode); err != nil {
		return nil, err
	}
	if containsAny(resp.Body, c.opts.BlockMarkers) {
		return nil, &FetchError{
			URL:        req.URL,
			StatusCode: 429,
			Retryable:  true,
			Kind:       ErrHTTPServer,
			Err:        errors.New("rate limit marker found in response body"),
		}
	}

	return &domain.FetchResult{
		Content:    resp.Body,
		StatusCode: resp.StatusCode,
		URL:        req.URL,
		FetchedAt:  c.clock.Now(),
	}, nil
}

// queued runs one physical request in the source's next queue slot.
func (c *fetchClient) queued(ctx context.Context, t Transport, req *Request) (*Response, error) {
	var resp *Response
	err := c.queue.Do(ctx, func(ctx context.Context) error {
		r, err := c.physical(ctx, t, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *fetchClient) physical(ctx context.Context, t Transport, req *Request) (*Response, error) {
	start := time.Now()
	resp, err := t.Do(ctx, req)
	metrics.FetchDuration.WithLabelValues(c.opts.Source, t.Name()).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.FetchRequestsTotal.WithLabelValues(c.opts.Source, t.Name(), "error").Inc()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		return nil, networkError(req.URL, err)
	}

	metrics.FetchRequestsTotal.WithLabelValues(c.opts.Source, t.Name(), strconv.Itoa(resp.StatusCode)).Inc()
	log.Debugf("%s %s -> %d (%d bytes)", t.Name(), req.URL, resp.StatusCode, len(resp.Body))
	return resp, nil
}

func (c *fetchClient) Close() error {
	var errs []error
	if c.browser != nil {
		errs = append(errs, c.browser.Close())
	}
	errs = append(errs, c.http.Close())
	c.queue.Close()
	return errors.Join(errs...)
}

// CacheKey is the content cache key for url fetched from source.
func CacheKey(source, url string) string {
	return source + ":" + NormalizeURL(url)
}

// NormalizeURL canonicalizes url so equivalent spellings share a cache entry.
func NormalizeURL(url string) string {
	normalized, err := purell.NormalizeURLString(strings.TrimSpace(url),
		purell.FlagsSafe|purell.FlagRemoveFragment|purell.FlagSortQuery)
	if err != nil {
		return strings.TrimSpace(url)
	}
	return normalized
}

func containsAny(body string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(body, m) {
			return true
		}
	}
	return false
}
