package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/use-agent/uniassist/config"
)

// ChromedpEngine drives Chromium through chromedp. It is the fallback
// browser engine when rod cannot start or navigate.
type ChromedpEngine struct {
	cfg config.BrowserConfig

	mu          sync.Mutex
	tab         context.Context
	allocCancel context.CancelFunc
	tabCancel   context.CancelFunc
}

// NewChromedpEngine creates an unopened ChromedpEngine.
func NewChromedpEngine(cfg config.BrowserConfig) *ChromedpEngine {
	return &ChromedpEngine{cfg: cfg}
}

func (e *ChromedpEngine) Name() string { return "chromedp" }

func (e *ChromedpEngine) Open(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tab != nil {
		return nil
	}

	ua := e.cfg.UserAgent
	if ua == "" {
		ua = config.DefaultUserAgent
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", e.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", "en-GB"),
		chromedp.WindowSize(e.cfg.ViewportWidth, e.cfg.ViewportHeight),
		chromedp.UserAgent(ua),
	)
	if e.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if e.cfg.BrowserBin != "" {
		opts = append(opts, chromedp.ExecPath(e.cfg.BrowserBin))
	}

	// The browser lives until Close, not until the caller's ctx ends, so
	// the allocator hangs off Background.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tab, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...any) {}))

	// The first Run allocates the browser. A deadline on it would kill the
	// browser later, so the caller's ctx is honoured from outside.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tab) }()

	timeout := time.NewTimer(e.cfg.PageLoadTimeout)
	defer timeout.Stop()
	var err error
	select {
	case err = <-started:
	case <-ctx.Done():
		err = ctx.Err()
	case <-timeout.C:
		err = context.DeadlineExceeded
	}
	if err != nil {
		tabCancel()
		allocCancel()
		return fmt.Errorf("chromedp: start browser: %w", err)
	}

	e.tab, e.tabCancel, e.allocCancel = tab, tabCancel, allocCancel
	slog.Debug("chromedp: browser ready")
	return nil
}

func (e *ChromedpEngine) Navigate(ctx context.Context, url string) error {
	if err := e.run(ctx, e.cfg.PageLoadTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("chromedp: navigate %s: %w", url, err)
	}
	e.waitIdle(ctx)
	return nil
}

// waitIdle polls document.readyState until the page reports complete or
// NetworkIdleTimeout passes. Timing out is not an error.
func (e *ChromedpEngine) waitIdle(ctx context.Context) {
	deadline := time.Now().Add(e.cfg.NetworkIdleTimeout)
	for time.Now().Before(deadline) {
		var state string
		if err := e.run(ctx, time.Second, chromedp.Evaluate(`document.readyState`, &state)); err != nil {
			return
		}
		if state == "complete" {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(250 * time.Millisecond):
		}
	}
	slog.Debug("chromedp: network idle wait timed out")
}

func (e *ChromedpEngine) HTML(ctx context.Context) (string, error) {
	var out string
	err := e.run(ctx, e.cfg.PageLoadTimeout, chromedp.Evaluate(`document.documentElement.outerHTML`, &out))
	return out, err
}

func (e *ChromedpEngine) Text(ctx context.Context, selector string) (string, error) {
	var out string
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		return el ? (el.innerText || el.textContent || "") : "";
	})()`, jsString(selector))
	if err := e.run(ctx, e.cfg.PageLoadTimeout, chromedp.Evaluate(js, &out)); err != nil {
		return "", err
	}
	return trimText(out), nil
}

func (e *ChromedpEngine) Attr(ctx context.Context, selector, attr string) (string, bool, error) {
	var out struct {
		Found bool   `json:"found"`
		Value string `json:"value"`
	}
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el || !el.hasAttribute(%s)) return {found: false, value: ""};
		return {found: true, value: el.getAttribute(%s)};
	})()`, jsString(selector), jsString(attr), jsString(attr))
	if err := e.run(ctx, e.cfg.PageLoadTimeout, chromedp.Evaluate(js, &out)); err != nil {
		return "", false, err
	}
	return out.Value, out.Found, nil
}

func (e *ChromedpEngine) All(ctx context.Context, selector string) ([]Element, error) {
	var raw []struct {
		Text string `json:"text"`
		HTML string `json:"html"`
	}
	js := fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(el => ({
		text: el.innerText || el.textContent || "",
		html: el.outerHTML
	}))`, jsString(selector))
	if err := e.run(ctx, e.cfg.PageLoadTimeout, chromedp.Evaluate(js, &raw)); err != nil {
		return nil, err
	}
	out := make([]Element, 0, len(raw))
	for _, r := range raw {
		out = append(out, Element{Text: trimText(r.Text), HTML: r.HTML})
	}
	return out, nil
}

func (e *ChromedpEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tabCancel != nil {
		e.tabCancel()
	}
	if e.allocCancel != nil {
		e.allocCancel()
	}
	e.tab, e.tabCancel, e.allocCancel = nil, nil, nil
	return nil
}

// run executes actions on the tab, bounded by timeout and by the caller's
// ctx.
func (e *ChromedpEngine) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	e.mu.Lock()
	tab := e.tab
	e.mu.Unlock()
	if tab == nil {
		return ErrNotOpen
	}

	opCtx, cancel := context.WithTimeout(tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(opCtx, actions...)
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
