package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
)

// settleDelay gives client-side scripts time to render after the body is ready.
const settleDelay = 2 * time.Second

// Browser renders pages in headless Chrome. Requires Chrome/Chromium on the host.
type Browser struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// Fetch renders url and returns the resulting DOM as a Result.
func (b *Browser) Fetch(ctx context.Context, url string) (*Result, error) {
	if !ValidURL(url) {
		return nil, &Error{URL: url, Message: "invalid URL"}
	}
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger.Debug("starting headless browser", "url", url)

	html, final, elapsed, err := render(ctx, url, timeout)
	if err != nil {
		return nil, &Error{URL: url, Message: "browser rendering failed", Cause: err}
	}
	logger.Debug("rendered page", "url", url, "bytes", len(html), "duration_ms", elapsed.Milliseconds())

	return &Result{
		URL:         url,
		FinalURL:    final,
		HTML:        html,
		ContentType: "text/html",
		StatusCode:  200,
		LoadTime:    elapsed,
	}, nil
}

func render(ctx context.Context, url string, timeout time.Duration) (string, string, time.Duration, error) {
	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent(DefaultUserAgent),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	var html, final string
	start := time.Now()
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Sleep(settleDelay),
		chromedp.Location(&final),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", "", 0, fmt.Errorf("chromedp: %w", err)
	}
	return html, final, time.Since(start), nil
}
