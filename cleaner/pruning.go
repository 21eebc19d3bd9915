package cleaner

import (
	"math"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// blockSignals are the measurements taken for one top-level block of a
// detail page body.
type blockSignals struct {
	textLen     int
	markupLen   int
	linkTextLen int
	tag         string
	classID     string
}

// Block weights. A block is kept when its score is positive.
const (
	weightDensity  = 3.0
	weightLinks    = -2.0
	weightTag      = 7.5
	weightClassID  = 3.0
	weightLogchars = 0.5
)

var (
	contentHints = []string{"content", "article", "post", "entry", "body", "main", "text", "story"}

	// University templates repeat quick links, alerts and course promos on
	// every page.
	boilerplateHints = []string{
		"sidebar", "widget", "nav", "menu", "comment", "footer", "header",
		"banner", "popup", "modal", "cookie", "social", "share", "related",
		"recommend", "promo", "quicklinks", "quick-links", "alert",
		"breadcrumb", "newsletter",
	}
)

// PruneContent returns the main-content HTML of a detail page that has no
// recognisable body container. Chrome is stripped, then each child of
// <body> is scored and only positive blocks are kept. If none qualifies
// the stripped body is returned whole. Unparsable input or a page with no
// <body> gives "".
func PruneContent(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(StripSelectors(rawHTML, Chrome...)))
	if err != nil {
		return ""
	}
	body := doc.Find("body")
	if body.Length() == 0 {
		return ""
	}

	var kept []string
	children := body.Children()
	for i := range children.Length() {
		block := children.Eq(i)
		sig, ok := measure(block)
		if !ok || sig.score() <= 0 {
			continue
		}
		if h, err := goquery.OuterHtml(block); err == nil {
			kept = append(kept, h)
		}
	}
	if len(kept) > 0 {
		return strings.Join(kept, "\n")
	}

	whole, err := body.Html()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(whole)
}

func measure(block *goquery.Selection) (blockSignals, bool) {
	markup, err := goquery.OuterHtml(block)
	if err != nil {
		return blockSignals{}, false
	}
	sig := blockSignals{
		textLen:   len(strings.TrimSpace(block.Text())),
		markupLen: len(markup),
		tag:       goquery.NodeName(block),
	}
	block.Find("a").Each(func(_ int, a *goquery.Selection) {
		sig.linkTextLen += len(strings.TrimSpace(a.Text()))
	})
	class, _ := block.Attr("class")
	id, _ := block.Attr("id")
	sig.classID = strings.ToLower(class + " " + id)
	return sig, true
}

func (s blockSignals) score() float64 {
	var density, links float64
	if s.markupLen > 0 {
		density = float64(s.textLen) / float64(s.markupLen)
	}
	if s.textLen > 0 {
		links = float64(s.linkTextLen) / float64(s.textLen)
	}
	return density*weightDensity +
		links*weightLinks +
		s.tagBias()*weightTag +
		s.hintBias()*weightClassID +
		math.Log10(float64(s.textLen)+1)*weightLogchars
}

func (s blockSignals) tagBias() float64 {
	switch s.tag {
	case "article", "main", "section":
		return 1
	case "nav", "footer", "aside", "header":
		return -1
	}
	return 0
}

// hintBias counts each direction at most once.
func (s blockSignals) hintBias() float64 {
	var bias float64
	if containsAny(s.classID, contentHints) {
		bias++
	}
	if containsAny(s.classID, boilerplateHints) {
		bias--
	}
	return bias
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
