package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Engine is one browser automation backend. A Session drives exactly one
// open Engine at a time and swaps it for another on failure.
type Engine interface {
	// Name returns the engine identifier ("rod", "chromedp", "http").
	Name() string

	// Open starts the engine: browser process, page, viewport, user agent.
	Open(ctx context.Context) error

	// Navigate loads url and waits for DOMContentLoaded, then waits for
	// network idle on a best-effort basis.
	Navigate(ctx context.Context, url string) error

	// HTML returns the current document.
	HTML(ctx context.Context) (string, error)

	// Text returns the text of the first element matching selector, or ""
	// when nothing matches.
	Text(ctx context.Context, selector string) (string, error)

	// Attr returns attribute attr of the first element matching selector.
	// The boolean is false when no element matches or the attribute is
	// absent.
	Attr(ctx context.Context, selector, attr string) (string, bool, error)

	// All returns a snapshot of every element matching selector.
	All(ctx context.Context, selector string) ([]Element, error)

	// Close releases everything Open acquired. Safe to call on an engine
	// that never opened.
	Close() error
}

// Factory builds a fresh, unopened Engine.
type Factory func() Engine

// acceptLanguage is sent by every engine so sites serve English content.
const acceptLanguage = "en-GB,en;q=0.9"

// ErrNotOpen is returned by engine operations before Open succeeded.
var ErrNotOpen = errors.New("engine: not open")

// Element is a detached snapshot of a matched element, so callers never
// hold live engine handles.
type Element struct {
	Text string // trimmed text content
	HTML string // outer HTML
}

// Selection parses the snapshot for further querying. The returned
// selection holds the element itself.
func (e Element) Selection() *goquery.Selection {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(e.HTML))
	if err != nil {
		return &goquery.Selection{}
	}
	body := doc.Find("body")
	if body.Length() > 0 && body.Children().Length() > 0 {
		return body.Children().First()
	}
	// Elements such as <tr> or <li> outside their parent are reparented
	// by the HTML parser; fall back to the whole document.
	return doc.Selection
}

// Attr returns an attribute of the snapshotted element.
func (e Element) Attr(name string) (string, bool) {
	return e.Selection().Attr(name)
}
