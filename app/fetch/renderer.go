package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/healthboard/crawler/app/session"
)

// Renderer is the headless-browser strategy for JavaScript-dependent pages.
// It owns one browser process for the whole run; session cookies are copied
// into the browser once at initialization and refreshed only through
// SeedCookies when the session is recreated.
type Renderer struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc

	userAgent   string
	waitTimeout time.Duration
}

type RenderOptions struct {
	UserAgent   string
	WaitTimeout time.Duration
}

func NewRenderer(opts RenderOptions) *Renderer {
	waitTimeout := opts.WaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = 15 * time.Second
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(
		context.Background(),
		append(
			chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent(opts.UserAgent),
		)...,
	)

	browserCtx, browserStop := chromedp.NewContext(allocCtx)

	return &Renderer{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		browserStop: browserStop,
		userAgent:   opts.UserAgent,
		waitTimeout: waitTimeout,
	}
}

// SeedCookies copies the session's cookies into the browser. The browser
// jar is never read back; the Session stays the single source of truth.
func (r *Renderer) SeedCookies(sess *session.Session) error {
	if sess == nil || len(sess.Cookies) == 0 {
		return nil
	}

	params := make([]*network.CookieParam, 0, len(sess.Cookies))
	for _, c := range sess.Cookies {
		params = append(params, &network.CookieParam{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}

	err := chromedp.Run(r.browserCtx,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetCookies(params).Do(ctx)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to seed browser cookies: %w", err)
	}

	slog.Debug("Browser cookies seeded", "count", len(params))
	return nil
}

func (r *Renderer) Fetch(ctx context.Context, req Request) (*Document, error) {
	tabCtx, tabCancel := chromedp.NewContext(r.browserCtx)
	defer tabCancel()

	navCtx, navCancel := context.WithTimeout(tabCtx, r.waitTimeout+15*time.Second)
	defer navCancel()

	// Respect caller cancellation as well.
	go func() {
		select {
		case <-ctx.Done():
			navCancel()
		case <-navCtx.Done():
		}
	}()

	err := chromedp.Run(navCtx,
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("navigation failed: %w", err)
	}

	if req.WaitSelector != "" {
		waitCtx, waitCancel := context.WithTimeout(navCtx, r.waitTimeout)
		err := chromedp.Run(waitCtx, chromedp.WaitVisible(req.WaitSelector, chromedp.ByQuery))
		waitCancel()
		if err != nil {
			// A missed selector is not fatal; extract from whatever DOM
			// is present.
			if errors.Is(err, context.DeadlineExceeded) {
				slog.Debug("Selector wait timed out, proceeding with current DOM",
					"url", req.URL, "selector", req.WaitSelector)
			} else {
				return nil, fmt.Errorf("selector wait failed: %w", err)
			}
		}
	}

	var html string
	if err := chromedp.Run(navCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("failed to capture DOM: %w", err)
	}
	if html == "" {
		return nil, fmt.Errorf("renderer returned empty DOM")
	}

	return &Document{
		URL:        req.URL,
		HTML:       html,
		StatusCode: 200,
		Rendered:   true,
		FetchedAt:  time.Now().UTC(),
	}, nil
}

func (r *Renderer) Close() {
	r.browserStop()
	r.allocCancel()
}
