package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/uniassist/config"
)

// RodEngine drives a local Chromium through go-rod. It is the preferred
// engine.
type RodEngine struct {
	cfg config.BrowserConfig

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	router   *rod.HijackRouter
}

// NewRodEngine creates an unopened RodEngine.
func NewRodEngine(cfg config.BrowserConfig) *RodEngine {
	return &RodEngine{cfg: cfg}
}

func (e *RodEngine) Name() string { return "rod" }

func (e *RodEngine) Open(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.page != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l := launcher.New().
		Headless(e.cfg.Headless).
		NoSandbox(e.cfg.NoSandbox)
	if e.cfg.BrowserBin != "" {
		l = l.Bin(e.cfg.BrowserBin)
	}
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", e.cfg.ViewportWidth, e.cfg.ViewportHeight))

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("rod: launch browser: %w", err)
	}
	e.launcher = l

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		e.launcher.Kill()
		e.launcher = nil
		return fmt.Errorf("rod: connect: %w", err)
	}
	e.browser = browser

	page, err := e.newPage()
	if err != nil {
		e.closeLocked()
		return err
	}
	e.page = page
	e.router = setupHijack(page, e.cfg.BlockResources, e.cfg.BlockAds)
	slog.Debug("rod: browser ready", "controlURL", controlURL)
	return nil
}

func (e *RodEngine) newPage() (*rod.Page, error) {
	var (
		page *rod.Page
		err  error
	)
	if e.cfg.Stealth {
		page, err = stealth.Page(e.browser)
	} else {
		page, err = e.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("rod: create page: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             e.cfg.ViewportWidth,
		Height:            e.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		return nil, fmt.Errorf("rod: set viewport: %w", err)
	}

	ua := e.cfg.UserAgent
	if ua == "" {
		ua = config.DefaultUserAgent
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      ua,
		AcceptLanguage: acceptLanguage,
	}); err != nil {
		return nil, fmt.Errorf("rod: set user agent: %w", err)
	}

	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: proto.NetworkHeaders{"Accept-Language": gson.New(acceptLanguage)},
	}.Call(page)

	return page, nil
}

func (e *RodEngine) Navigate(ctx context.Context, url string) error {
	page, err := e.current()
	if err != nil {
		return err
	}

	navCtx, cancel := context.WithTimeout(ctx, e.cfg.PageLoadTimeout)
	defer cancel()
	p := page.Context(navCtx)

	// Register the waiter before navigating so the event is not missed.
	waitDOM := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("rod: navigate %s: %w", url, err)
	}
	waitDOM()
	if err := navCtx.Err(); err != nil {
		return fmt.Errorf("rod: navigate %s: %w", url, err)
	}

	e.waitIdle(ctx, page)
	return nil
}

// waitIdle waits for the network to go quiet, giving up silently after
// NetworkIdleTimeout.
func (e *RodEngine) waitIdle(ctx context.Context, page *rod.Page) {
	idleCtx, cancel := context.WithTimeout(ctx, e.cfg.NetworkIdleTimeout)
	defer cancel()
	wait := page.Context(idleCtx).WaitRequestIdle(500*time.Millisecond, nil, nil, nil)
	wait()
	if idleCtx.Err() != nil {
		slog.Debug("rod: network idle wait timed out")
	}
}

func (e *RodEngine) HTML(ctx context.Context) (string, error) {
	page, err := e.current()
	if err != nil {
		return "", err
	}
	return page.Context(ctx).HTML()
}

func (e *RodEngine) Text(ctx context.Context, selector string) (string, error) {
	page, err := e.current()
	if err != nil {
		return "", err
	}
	has, el, err := page.Context(ctx).Has(selector)
	if err != nil || !has {
		return "", err
	}
	return el.Text()
}

func (e *RodEngine) Attr(ctx context.Context, selector, attr string) (string, bool, error) {
	page, err := e.current()
	if err != nil {
		return "", false, err
	}
	has, el, err := page.Context(ctx).Has(selector)
	if err != nil || !has {
		return "", false, err
	}
	v, err := el.Attribute(attr)
	if err != nil || v == nil {
		return "", false, err
	}
	return *v, true, nil
}

func (e *RodEngine) All(ctx context.Context, selector string) ([]Element, error) {
	page, err := e.current()
	if err != nil {
		return nil, err
	}
	els, err := page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		text, err := el.Text()
		if err != nil {
			return nil, err
		}
		outer, err := el.HTML()
		if err != nil {
			return nil, err
		}
		out = append(out, Element{Text: trimText(text), HTML: outer})
	}
	return out, nil
}

func (e *RodEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeLocked()
}

func (e *RodEngine) closeLocked() error {
	var errs []error
	if e.router != nil {
		errs = append(errs, e.router.Stop())
		e.router = nil
	}
	if e.page != nil {
		errs = append(errs, e.page.Close())
		e.page = nil
	}
	if e.browser != nil {
		errs = append(errs, e.browser.Close())
		e.browser = nil
	}
	if e.launcher != nil {
		e.launcher.Kill()
		e.launcher.Cleanup()
		e.launcher = nil
	}
	return errors.Join(errs...)
}

func (e *RodEngine) current() (*rod.Page, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.page == nil {
		return nil, ErrNotOpen
	}
	return e.page, nil
}
