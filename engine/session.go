package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/use-agent/uniassist/config"
	"github.com/use-agent/uniassist/models"
)

// ErrBrowserUnavailable means no configured engine could be opened.
var ErrBrowserUnavailable = errors.New("browser unavailable")

// ErrChallenge means a navigation landed on a bot-protection page.
var ErrChallenge = errors.New("bot protection challenge")

// State is the lifecycle state of a Session.
type State int32

const (
	StateClosed State = iota
	StateOpening
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// SessionOptions tunes a Session.
type SessionOptions struct {
	// MinDelay and MaxDelay bound the random pause before each navigation.
	MinDelay time.Duration
	MaxDelay time.Duration

	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error

	// Memory, when set, remembers per host which engine loaded it after a
	// fallback. Names lists the engine names in factory order so the
	// remembered engine can be opened first.
	Memory *DomainMemory
	Names  []string

	Logger *slog.Logger
}

// Session exposes one browsing capability set over several interchangeable
// engines. Factories are tried in order on Open; a failed navigation tears
// down the active engine and retries once on the next one. Which engine is
// active is never exposed.
//
// A Session is owned by a single scrape call. Close must be called on every
// exit path and may be called any number of times.
type Session struct {
	factories []Factory
	opts      SessionOptions
	log       *slog.Logger

	mu     sync.Mutex
	state  State
	active Engine
	index  int
}

// NewSession creates a closed Session over factories, preferred first.
func NewSession(factories []Factory, opts SessionOptions) *Session {
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Session{factories: factories, opts: opts, log: log}
}

// State reports the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Open starts the first engine that opens successfully. It fails with
// ErrBrowserUnavailable only when every engine failed.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateOpen {
		return nil
	}
	return s.openLocked(ctx, 0, len(s.factories))
}

// OpenFor is Open for a session whose first navigation goes to rawURL: the
// engine remembered for its host, if any, is tried first.
func (s *Session) OpenFor(ctx context.Context, rawURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateOpen {
		return nil
	}
	return s.openLocked(ctx, s.preferred(rawURL), len(s.factories))
}

// preferred returns the factory index remembered for rawURL's host, or 0.
func (s *Session) preferred(rawURL string) int {
	if s.opts.Memory == nil {
		return 0
	}
	name := s.opts.Memory.Lookup(rawURL)
	if name == "" {
		return 0
	}
	if i := slices.Index(s.opts.Names, name); i >= 0 && i < len(s.factories) {
		return i
	}
	return 0
}

// remember records the outcome of a navigation to rawURL. Only engines
// other than the first choice are worth remembering.
func (s *Session) remember(rawURL string, ok bool) {
	if s.opts.Memory == nil {
		return
	}
	if ok && s.active != nil && s.index != 0 {
		s.opts.Memory.Remember(rawURL, s.active.Name())
		return
	}
	s.opts.Memory.Forget(rawURL)
}

// openLocked tries up to attempts factories starting at start, wrapping.
func (s *Session) openLocked(ctx context.Context, start, attempts int) error {
	s.state = StateOpening
	var errs []error
	for i := 0; i < attempts && len(s.factories) > 0; i++ {
		idx := (start + i) % len(s.factories)
		eng := s.factories[idx]()
		if err := eng.Open(ctx); err != nil {
			s.log.Error("session: engine failed to open", "engine", eng.Name(), "error", err)
			_ = eng.Close()
			errs = append(errs, fmt.Errorf("%s: %w", eng.Name(), err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if i > 0 {
			s.log.Info("session: fallback engine opened", "engine", eng.Name())
		}
		s.active, s.index, s.state = eng, idx, StateOpen
		return nil
	}
	s.state = StateClosed
	return models.NewScrapeError(
		models.ErrCodeBrowserUnavailable,
		"no browser engine could be opened",
		errors.Join(append([]error{ErrBrowserUnavailable}, errs...)...),
	)
}

// Navigate loads url, opening the session first if needed. On failure the
// active engine is closed and the navigation is retried once on the next
// engine. It reports success and never returns an error.
func (s *Session) Navigate(ctx context.Context, url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateOpen {
		if err := s.openLocked(ctx, s.preferred(url), len(s.factories)); err != nil {
			s.log.Warn("session: cannot navigate, no engine", "url", url, "error", err)
			return false
		}
	}

	err := s.navigateLocked(ctx, url)
	if err == nil {
		s.remember(url, true)
		return true
	}
	s.log.Warn("session: navigation failed", "url", url, "error", err)
	if len(s.factories) < 2 || ctx.Err() != nil {
		return false
	}

	failed := s.index
	s.closeLocked()
	if err := s.openLocked(ctx, failed+1, len(s.factories)-1); err != nil {
		s.log.Warn("session: no fallback engine available", "url", url, "error", err)
		s.remember(url, false)
		return false
	}
	if err := s.navigateLocked(ctx, url); err != nil {
		s.log.Warn("session: fallback navigation failed", "url", url, "error", err)
		s.remember(url, false)
		return false
	}
	s.remember(url, true)
	return true
}

// navigateLocked pauses, loads url and rejects bot-protection pages.
func (s *Session) navigateLocked(ctx context.Context, url string) error {
	if err := s.opts.Sleep(ctx, s.delay()); err != nil {
		return err
	}
	if err := s.active.Navigate(ctx, url); err != nil {
		return err
	}
	if page, err := s.active.HTML(ctx); err == nil && IsChallenge(page) {
		return fmt.Errorf("%s: %w", s.active.Name(), ErrChallenge)
	}
	return nil
}

// delay picks a uniformly random pause in [MinDelay, MaxDelay].
func (s *Session) delay() time.Duration {
	lo, hi := s.opts.MinDelay, s.opts.MaxDelay
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
}

// PageHTML returns the current document, or "" on failure.
func (s *Session) PageHTML(ctx context.Context) string {
	eng := s.engine()
	if eng == nil {
		return ""
	}
	html, err := eng.HTML(ctx)
	if err != nil {
		s.log.Warn("session: page html failed", "error", err)
		return ""
	}
	return html
}

// QueryText returns the text of the first match of selector, or "".
func (s *Session) QueryText(ctx context.Context, selector string) string {
	eng := s.engine()
	if eng == nil {
		return ""
	}
	text, err := eng.Text(ctx, selector)
	if err != nil {
		s.log.Warn("session: query text failed", "selector", selector, "error", err)
		return ""
	}
	return text
}

// QueryAttr returns attribute attr of the first match of selector.
func (s *Session) QueryAttr(ctx context.Context, selector, attr string) (string, bool) {
	eng := s.engine()
	if eng == nil {
		return "", false
	}
	v, ok, err := eng.Attr(ctx, selector, attr)
	if err != nil {
		s.log.Warn("session: query attribute failed", "selector", selector, "attr", attr, "error", err)
		return "", false
	}
	return v, ok
}

// QueryAll returns snapshots of every match of selector, or nil.
func (s *Session) QueryAll(ctx context.Context, selector string) []Element {
	eng := s.engine()
	if eng == nil {
		return nil
	}
	els, err := eng.All(ctx, selector)
	if err != nil {
		s.log.Warn("session: query all failed", "selector", selector, "error", err)
		return nil
	}
	return els
}

// Close tears down the active engine. Safe to call repeatedly.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Session) closeLocked() error {
	if s.active == nil {
		s.state = StateClosed
		return nil
	}
	err := s.active.Close()
	if err != nil {
		s.log.Warn("session: engine close failed", "engine", s.active.Name(), "error", err)
	}
	s.active = nil
	s.state = StateClosed
	return err
}

func (s *Session) engine() Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return nil
	}
	return s.active
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Factories maps the configured engine names to factories, preserving
// order. Known names are "rod", "chromedp" and "http".
func Factories(cfg config.BrowserConfig) ([]Factory, error) {
	if len(cfg.Engines) == 0 {
		return nil, fmt.Errorf("engine: no engines configured")
	}
	out := make([]Factory, 0, len(cfg.Engines))
	for _, name := range cfg.Engines {
		switch name {
		case "rod":
			out = append(out, func() Engine { return NewRodEngine(cfg) })
		case "chromedp":
			out = append(out, func() Engine { return NewChromedpEngine(cfg) })
		case "http":
			out = append(out, func() Engine { return NewHTTPEngine(cfg) })
		default:
			return nil, fmt.Errorf("engine: unknown engine %q", name)
		}
	}
	return out, nil
}

// SessionOptionsFor builds session options from the browser config.
func SessionOptionsFor(cfg config.BrowserConfig) SessionOptions {
	return SessionOptions{
		MinDelay: cfg.MinDelay,
		MaxDelay: cfg.MaxDelay,
		Names:    cfg.Engines,
	}
}
