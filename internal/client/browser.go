package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	log "github.com/sirupsen/logrus"

	"coinmarket/scraper/internal/credentials"
)

var errBrowserClosed = errors.New("browser transport is closed")

type BrowserOptions struct {
	Headless      bool
	ExecPath      string
	UserAgent     string
	RenderTimeout time.Duration
	WaitSelector  string
	CookieDomain  string
}

// launcher starts a browser process with the session cookies installed and
// returns the context tabs are opened from plus the func that shuts it down.
type launcher func(ctx context.Context, opts BrowserOptions, cookies []*network.CookieParam) (context.Context, func(), error)

// browserTransport renders pages in one headless browser shared by every call.
// The browser is started by the first request, and session cookies are injected
// once at that point. Close releases the process.
type browserTransport struct {
	opts        BrowserOptions
	credentials credentials.Provider
	launch      launcher

	mu         sync.Mutex
	browserCtx context.Context
	release    func()
	closed     bool
}

func NewBrowserTransport(opts BrowserOptions, creds credentials.Provider) Transport {
	return &browserTransport{
		opts:        opts,
		credentials: creds,
		launch:      launchChrome,
	}
}

func (b *browserTransport) Name() string {
	return "browser"
}

// ensure starts the browser at most once. Concurrent first callers block on
// the mutex and then share the context the winner created.
func (b *browserTransport) ensure(ctx context.Context) (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errBrowserClosed
	}
	if b.browserCtx != nil {
		return b.browserCtx, nil
	}

	params, err := b.cookieParams(ctx)
	if err != nil {
		log.Warnf("⚠️ Could not load cookies for browser context: %v", err)
		params = nil
	}

	browserCtx, release, err := b.launch(ctx, b.opts, params)
	if err != nil {
		return nil, err
	}

	b.browserCtx = browserCtx
	b.release = release

	log.Info("🌐 Headless browser started")
	return browserCtx, nil
}

func launchChrome(_ context.Context, opts BrowserOptions, cookies []*network.CookieParam) (context.Context, func(), error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.UserAgent(opts.UserAgent),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	actions := []chromedp.Action{network.Enable()}
	if len(cookies) > 0 {
		actions = append(actions, network.SetCookies(cookies))
	}

	// The first Run launches the browser process.
	if err := chromedp.Run(browserCtx, actions...); err != nil {
		browserCancel()
		allocCancel()
		return nil, nil, fmt.Errorf("failed to start browser: %w", err)
	}

	release := func() {
		if err := chromedp.Cancel(browserCtx); err != nil {
			log.Warnf("⚠️ Browser did not shut down cleanly: %v", err)
		}
		browserCancel()
		allocCancel()
	}
	return browserCtx, release, nil
}

func (b *browserTransport) cookieParams(ctx context.Context) ([]*network.CookieParam, error) {
	if b.credentials == nil {
		return nil, nil
	}
	raw, err := b.credentials.Cookies(ctx)
	if err != nil {
		return nil, err
	}

	var params []*network.CookieParam
	for _, c := range credentials.Parse(raw) {
		params = append(params, &network.CookieParam{
			Name:   c.Name,
			Value:  c.Value,
			Domain: b.opts.CookieDomain,
			Path:   "/",
		})
	}
	return params, nil
}

func (b *browserTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	if req.Form != nil {
		return nil, fmt.Errorf("browser transport does not support form posts")
	}

	browserCtx, err := b.ensure(ctx)
	if err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	if b.opts.RenderTimeout > 0 {
		var cancelTimeout context.CancelFunc
		tabCtx, cancelTimeout = context.WithTimeout(tabCtx, b.opts.RenderTimeout)
		defer cancelTimeout()
	}

	resp, err := chromedp.RunResponse(tabCtx, chromedp.Navigate(req.URL))
	if err != nil {
		return nil, fmt.Errorf("failed to navigate to %s: %w", req.URL, err)
	}

	status := 0
	if resp != nil {
		status = int(resp.Status)
	}

	var html string
	var actions []chromedp.Action
	if b.opts.WaitSelector != "" && status < 400 {
		actions = append(actions, chromedp.WaitReady(b.opts.WaitSelector, chromedp.ByQuery))
	}
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", req.URL, err)
	}

	return &Response{StatusCode: status, Body: html}, nil
}

func (b *browserTransport) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	if b.release != nil {
		b.release()
		b.release = nil
		b.browserCtx = nil
		log.Info("🌐 Headless browser stopped")
	}
	return nil
}
