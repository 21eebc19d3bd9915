package engine

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Engines that hold a parsed document rather than a live page answer
// queries through these helpers.

func domText(doc *goquery.Document, selector string) string {
	if doc == nil {
		return ""
	}
	return trimText(doc.Find(selector).First().Text())
}

func domAttr(doc *goquery.Document, selector, attr string) (string, bool) {
	if doc == nil {
		return "", false
	}
	return doc.Find(selector).First().Attr(attr)
}

func domAll(doc *goquery.Document, selector string) []Element {
	if doc == nil {
		return nil
	}
	sel := doc.Find(selector)
	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		outer, err := goquery.OuterHtml(s)
		if err != nil {
			return
		}
		out = append(out, Element{
			Text: trimText(s.Text()),
			HTML: outer,
		})
	})
	return out
}

func trimText(s string) string {
	return strings.TrimSpace(s)
}
