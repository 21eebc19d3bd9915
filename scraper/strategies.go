package scraper

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/use-agent/uniassist/cleaner"
	"github.com/use-agent/uniassist/models"
)

// Strategy is one CSS selector in an ordered fallback list. When Attr is
// set the strategy yields that attribute instead of the element text.
type Strategy struct {
	Name     string
	Selector string
	Attr     string

	matcher cascadia.Selector
}

// Match returns the elements of sel matched by the strategy, the
// selection itself included, in document order.
func (s Strategy) Match(sel *goquery.Selection) *goquery.Selection {
	if sel == nil || s.matcher == nil {
		return &goquery.Selection{}
	}
	return sel.FilterMatcher(s.matcher).AddSelection(sel.FindMatcher(s.matcher))
}

// value extracts the strategy's value from a single element.
func (s Strategy) value(el *goquery.Selection) string {
	if s.Attr != "" {
		v, _ := el.Attr(s.Attr)
		return v
	}
	return cleaner.CleanSelection(el)
}

// Strategies is evaluated in order, most specific first.
type Strategies []Strategy

func compile(list ...Strategy) Strategies {
	for i := range list {
		list[i].matcher = cascadia.MustCompile(list[i].Selector)
	}
	return list
}

// First returns the first non-empty value any strategy yields.
func (ss Strategies) First(sel *goquery.Selection) (string, bool) {
	for _, s := range ss {
		m := s.Match(sel)
		for i := range m.Nodes {
			if v := s.value(m.Eq(i)); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

// Values returns every non-empty value in strategy order. Callers that
// must validate a value (dates, image URLs) walk the list until one
// passes.
func (ss Strategies) Values(sel *goquery.Selection) []string {
	var out []string
	for _, s := range ss {
		s.Match(sel).Each(func(_ int, el *goquery.Selection) {
			if v := s.value(el); v != "" {
				out = append(out, v)
			}
		})
	}
	return out
}

// Container returns the first matched element whose text is non-empty.
func (ss Strategies) Container(sel *goquery.Selection) (*goquery.Selection, bool) {
	for _, s := range ss {
		m := s.Match(sel)
		for i := range m.Nodes {
			el := m.Eq(i)
			if cleaner.CleanSelection(el) != "" {
				return el, true
			}
		}
	}
	return nil, false
}

var (
	newsCards = compile(
		Strategy{Name: "news-article", Selector: ".news-article"},
		Strategy{Name: "news-item", Selector: ".news-item"},
		Strategy{Name: "post", Selector: "article.post"},
		Strategy{Name: "news-listing", Selector: ".news-listing article"},
		Strategy{Name: "card", Selector: ".card"},
		Strategy{Name: "article", Selector: "article"},
		Strategy{Name: "list-item", Selector: "li.news"},
	)

	eventCards = compile(
		Strategy{Name: "event", Selector: ".event"},
		Strategy{Name: "event-item", Selector: ".event-item"},
		Strategy{Name: "calendar-event", Selector: ".calendar-event"},
		Strategy{Name: "events-listing", Selector: ".events-listing article"},
		Strategy{Name: "card", Selector: ".card"},
		Strategy{Name: "article", Selector: "article"},
		Strategy{Name: "list-item", Selector: "li.event"},
	)

	titleStrategies = compile(
		Strategy{Name: "h2", Selector: "h2"},
		Strategy{Name: "h3", Selector: "h3"},
		Strategy{Name: "title", Selector: ".title"},
		Strategy{Name: "h4", Selector: "h4"},
		Strategy{Name: "anchor", Selector: "a"},
	)

	linkStrategies = compile(
		Strategy{Name: "href", Selector: "a[href]", Attr: "href"},
	)

	summaryStrategies = compile(
		Strategy{Name: "summary", Selector: ".summary"},
		Strategy{Name: "excerpt", Selector: ".excerpt"},
		Strategy{Name: "description", Selector: ".description"},
		Strategy{Name: "paragraph", Selector: "p"},
	)

	cardDateStrategies = compile(
		Strategy{Name: "datetime", Selector: "time[datetime]", Attr: "datetime"},
		Strategy{Name: "date", Selector: ".date, .published, time"},
		Strategy{Name: "event-date", Selector: ".event-date, .date-time, .when"},
		Strategy{Name: "date-class", Selector: "[class*=date]"},
	)

	locationStrategies = compile(
		Strategy{Name: "location", Selector: ".location"},
		Strategy{Name: "venue", Selector: ".venue"},
		Strategy{Name: "location-class", Selector: "[class*=location]"},
	)

	cardImageStrategies = compile(
		Strategy{Name: "src", Selector: "img[src]", Attr: "src"},
		Strategy{Name: "data-src", Selector: "img[data-src]", Attr: "data-src"},
	)

	headingStrategies = compile(
		Strategy{Name: "h1", Selector: "h1"},
		Strategy{Name: "document-title", Selector: "title"},
	)

	bodyStrategies = compile(
		Strategy{Name: "content", Selector: ".content"},
		Strategy{Name: "entry-content", Selector: ".entry-content"},
		Strategy{Name: "event-content", Selector: ".event-content"},
		Strategy{Name: "article", Selector: "article"},
		Strategy{Name: "main", Selector: "main"},
		Strategy{Name: "description", Selector: ".description"},
	)

	detailImageStrategies = compile(
		Strategy{Name: "og-image", Selector: `meta[property="og:image"]`, Attr: "content"},
		Strategy{Name: "featured", Selector: ".featured-image img", Attr: "src"},
		Strategy{Name: "article-img", Selector: "article img", Attr: "src"},
	)

	detailDateStrategies = compile(
		Strategy{Name: "event-date", Selector: ".event-date"},
		Strategy{Name: "date-time", Selector: ".date-time"},
		Strategy{Name: "datetime", Selector: "time[datetime]", Attr: "datetime"},
		Strategy{Name: "date", Selector: ".date"},
		Strategy{Name: "date-class", Selector: "[class*=date]"},
	)
)

// CardStrategies returns the listing card selectors for kind.
func CardStrategies(kind models.ContentKind) Strategies {
	if kind == models.KindEvent {
		return eventCards
	}
	return newsCards
}
