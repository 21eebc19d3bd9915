// Package scraper turns university listing pages into content records. A
// listing page is searched for item cards with ordered selector strategies;
// each item's detail page is then visited for the full body.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/uniassist/cleaner"
	"github.com/use-agent/uniassist/dateparse"
	"github.com/use-agent/uniassist/engine"
	"github.com/use-agent/uniassist/models"
)

// errSkipped marks an item dropped at the item boundary.
var errSkipped = errors.New("item skipped")

var defaultPatterns = map[models.ContentKind]*regexp.Regexp{
	models.KindNews:  regexp.MustCompile(`/news/`),
	models.KindEvent: regexp.MustCompile(`/events?/`),
}

// Options tunes a Scraper.
type Options struct {
	// MaxItems is used when a call passes a non-positive limit.
	MaxItems int

	// Dates parses card and detail dates. Defaults to a parser on the
	// wall clock.
	Dates *dateparse.Parser

	Logger *slog.Logger
}

// Scraper scrapes listing pages. Each call opens its own Session and
// closes it before returning.
type Scraper struct {
	newSession func() *engine.Session
	maxItems   int
	dates      *dateparse.Parser
	log        *slog.Logger
}

// New creates a Scraper that obtains a fresh session per call from
// newSession.
func New(newSession func() *engine.Session, opts Options) *Scraper {
	s := &Scraper{
		newSession: newSession,
		maxItems:   opts.MaxItems,
		dates:      opts.Dates,
		log:        opts.Logger,
	}
	if s.maxItems <= 0 {
		s.maxItems = 20
	}
	if s.dates == nil {
		s.dates = &dateparse.Parser{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// ScrapeListing scrapes up to maxItems items of kind from listingURL,
// accepting detail URLs under the kind's default path (/news/ or
// /event(s)/).
func (s *Scraper) ScrapeListing(ctx context.Context, listingURL string, kind models.ContentKind, maxItems int) Result {
	return s.scrape(ctx, listingURL, kind, maxItems, defaultPatterns[kind])
}

// ScrapeSource scrapes a configured source, honouring its path pattern and
// item limit.
func (s *Scraper) ScrapeSource(ctx context.Context, src models.Source) Result {
	pattern := defaultPatterns[src.Kind]
	if src.PathPattern != "" {
		re, err := regexp.Compile(src.PathPattern)
		if err != nil {
			return Result{Err: models.NewScrapeError(models.ErrCodeInvalidInput, "invalid path pattern", err)}
		}
		pattern = re
	}
	return s.scrape(ctx, src.URL, src.Kind, src.MaxItems, pattern)
}

// candidate is a discovered item: a listing card, or a bare anchor when no
// card strategy matched.
type candidate struct {
	card  *goquery.Selection
	title string
	href  string
}

func (s *Scraper) scrape(ctx context.Context, listingURL string, kind models.ContentKind, maxItems int, pattern *regexp.Regexp) Result {
	base, err := url.Parse(listingURL)
	if err != nil || !base.IsAbs() {
		return Result{Err: models.NewScrapeError(models.ErrCodeInvalidInput, "listing url must be absolute", err)}
	}
	if pattern == nil {
		return Result{Err: models.NewScrapeError(models.ErrCodeInvalidInput, fmt.Sprintf("unknown content kind %q", kind), nil)}
	}
	if maxItems <= 0 {
		maxItems = s.maxItems
	}

	sess := s.newSession()
	defer sess.Close()

	if err := sess.OpenFor(ctx, listingURL); err != nil {
		s.log.Error("scraper: no browser available", "url", listingURL, "error", err)
		return Result{Err: err}
	}
	if !sess.Navigate(ctx, listingURL) {
		s.log.Error("scraper: listing page unreachable", "url", listingURL)
		return Result{Err: models.NewScrapeError(models.ErrCodeNavigation, "listing page unreachable: "+listingURL, nil)}
	}

	cands := s.discover(ctx, sess, base, kind, pattern)
	if len(cands) > maxItems {
		cands = cands[:maxItems]
	}

	items := make([]models.ContentRecord, 0, len(cands))
	for i, c := range cands {
		if ctx.Err() != nil {
			s.log.Warn("scraper: stopping early", "url", listingURL, "done", i, "error", ctx.Err())
			break
		}
		rec, err := s.scrapeItem(ctx, sess, base, kind, pattern, c)
		if err != nil {
			s.log.Warn("scraper: item skipped", "listing", listingURL, "index", i, "reason", err)
			continue
		}
		items = append(items, rec)
	}

	s.log.Info("scraper: listing scraped",
		"url", listingURL, "kind", kind, "candidates", len(cands), "items", len(items))
	return Result{Items: items}
}

// discover returns the cards matched by the first card strategy that finds
// any, falling back to anchors whose URL matches pattern.
func (s *Scraper) discover(ctx context.Context, sess *engine.Session, base *url.URL, kind models.ContentKind, pattern *regexp.Regexp) []candidate {
	for _, st := range CardStrategies(kind) {
		els := sess.QueryAll(ctx, st.Selector)
		if len(els) == 0 {
			continue
		}
		s.log.Debug("scraper: cards found", "strategy", st.Name, "count", len(els))
		out := make([]candidate, 0, len(els))
		for _, el := range els {
			out = append(out, candidate{card: el.Selection()})
		}
		return out
	}

	s.log.Info("scraper: no cards matched, falling back to links", "url", base.String())
	var out []candidate
	for _, l := range cleaner.ExtractLinks(sess.PageHTML(ctx), base.String()) {
		u, err := url.Parse(l.Href)
		if err != nil || !pattern.MatchString(u.Path) || l.Href == base.String() {
			continue
		}
		out = append(out, candidate{title: l.Text, href: l.Href})
	}
	return out
}

// untitled is the title of a record whose detail page has no <h1> or
// <title> and whose card gave none.
const untitled = "Untitled"

func (s *Scraper) scrapeItem(ctx context.Context, sess *engine.Session, base *url.URL, kind models.ContentKind, pattern *regexp.Regexp, c candidate) (models.ContentRecord, error) {
	rec := models.ContentRecord{Kind: kind, Title: c.title}
	href := c.href

	if c.card != nil {
		title, ok := titleStrategies.First(c.card)
		if !ok {
			return rec, fmt.Errorf("%w: no title", errSkipped)
		}
		rec.Title = title
		if href, ok = linkStrategies.First(c.card); !ok {
			return rec, fmt.Errorf("%w: no link", errSkipped)
		}
		rec.Summary, _ = summaryStrategies.First(c.card)
		rec.PublishedDate = s.findDate(cardDateStrategies, c.card, cleaner.CleanSelection(c.card))
		rec.ImageURL = firstURL(base, cardImageStrategies.Values(c.card))
		if kind == models.KindEvent {
			rec.Location, _ = locationStrategies.First(c.card)
		}
	}
	if rec.Title == "" {
		return rec, fmt.Errorf("%w: no title", errSkipped)
	}

	href = strings.TrimSpace(href)
	if href == "" || href == "#" {
		return rec, fmt.Errorf("%w: empty href", errSkipped)
	}
	u, err := base.Parse(href)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return rec, fmt.Errorf("%w: unusable href %q", errSkipped, href)
	}
	u.Fragment = ""
	if !pattern.MatchString(u.Path) {
		return rec, fmt.Errorf("%w: %s is outside the %s path", errSkipped, u, kind)
	}
	rec.URL = u.String()

	if sess.Navigate(ctx, rec.URL) {
		s.fillFromDetail(ctx, sess, u, &rec)
	} else {
		s.log.Warn("scraper: detail page unreachable, keeping card data", "url", rec.URL)
		rec.Body = rec.Summary
	}

	if kind == models.KindEvent {
		rec.Body = eventBody(rec)
	}
	return rec, nil
}

// fillFromDetail re-extracts title, body, image and (for events) date and
// location from the detail page. Card values win where the card had them,
// except the title and image, which the detail page states more reliably.
func (s *Scraper) fillFromDetail(ctx context.Context, sess *engine.Session, pageURL *url.URL, rec *models.ContentRecord) {
	page := sess.PageHTML(ctx)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil || page == "" {
		rec.Body = rec.Summary
		if rec.Title == "" {
			rec.Title = untitled
		}
		return
	}
	root := doc.Selection

	if title, ok := headingStrategies.First(root); ok {
		rec.Title = title
	} else if rec.Title == "" {
		rec.Title = untitled
	}

	rec.Body, rec.BodyHTML = s.extractBody(root, page, rec.URL)
	if rec.Body == "" {
		rec.Body = rec.Summary
	}

	if img := firstURL(pageURL, detailImageStrategies.Values(root)); img != "" {
		rec.ImageURL = img
	} else if rec.ImageURL == "" {
		if imgs := cleaner.ExtractImages(page, rec.URL); len(imgs) > 0 {
			rec.ImageURL = imgs[0].Src
		}
	}

	if rec.Kind == models.KindEvent {
		if rec.PublishedDate == nil {
			rec.PublishedDate = s.findDate(detailDateStrategies, root, rec.Body)
		}
		if rec.Location == "" {
			rec.Location, _ = locationStrategies.First(root)
		}
	}
}

// extractBody tries the container strategies, then readability, then the
// pruned page body, then the whole document.
func (s *Scraper) extractBody(root *goquery.Selection, page, pageURL string) (text, html string) {
	if el, ok := bodyStrategies.Container(root); ok {
		outer, _ := goquery.OuterHtml(el)
		return cleaner.CleanSelection(el), cleaner.Sanitize(outer)
	}
	if art, ok := cleaner.ExtractContent(page, pageURL); ok {
		return art.Text, cleaner.Sanitize(art.HTML)
	}
	if body := cleaner.PruneContent(page); body != "" {
		if text := cleaner.Clean(body); text != "" {
			return text, cleaner.Sanitize(body)
		}
	}
	return cleaner.Clean(page), ""
}

// findDate parses the first strategy value that yields a date, then scans
// freeText for a day-month-year phrase.
func (s *Scraper) findDate(strategies Strategies, sel *goquery.Selection, freeText string) *time.Time {
	for _, v := range strategies.Values(sel) {
		if t, ok := s.dates.Parse(v); ok {
			return &t
		}
	}
	if t, ok := s.dates.FindInText(freeText); ok {
		return &t
	}
	return nil
}

// firstURL resolves the first usable http(s) URL among values.
func firstURL(base *url.URL, values []string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || strings.HasPrefix(v, "data:") {
			continue
		}
		u, err := base.Parse(v)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		return u.String()
	}
	return ""
}

// eventBody prefixes an event body with its headline facts so they are
// part of the embedded text.
func eventBody(rec models.ContentRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event: %s\n", rec.Title)
	if rec.PublishedDate != nil {
		fmt.Fprintf(&b, "Date: %s\n", rec.PublishedDate.Format("2006-01-02"))
	}
	if rec.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", rec.Location)
	}
	b.WriteString("\n")
	b.WriteString(rec.Body)
	return b.String()
}
