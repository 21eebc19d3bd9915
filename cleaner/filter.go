package cleaner

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Chrome lists page furniture that never belongs to an article body.
var Chrome = []string{
	"header", "footer", "nav", "aside", "form",
	".cookie-banner", ".breadcrumb", ".share", ".social",
}

// StripSelectors deletes every element matching any of selectors and
// returns the remaining document. The input comes back untouched when
// there is nothing to strip or it cannot be parsed.
func StripSelectors(rawHTML string, selectors ...string) string {
	if len(selectors) == 0 {
		return rawHTML
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}
	doc.Find(strings.Join(selectors, ", ")).Remove()

	out, err := doc.Html()
	if err != nil {
		return rawHTML
	}
	return out
}
