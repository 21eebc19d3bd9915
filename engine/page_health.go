package engine

import (
	"errors"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// ErrNeedsBrowser means a fetched page is a script shell whose content only
// appears after JavaScript runs.
var ErrNeedsBrowser = errors.New("page needs a javascript-capable browser")

var reNoscript = regexp.MustCompile(`<noscript[^>]*>[^<]*(enable|activate|turn on|requires?)\s+javascript`)

// NeedsBrowser reports whether raw HTML fetched without a browser is likely
// a client-rendered shell: little visible text next to scripts, an empty
// SPA root container, or a noscript warning asking for JavaScript.
func NeedsBrowser(raw string) bool {
	lower := strings.ToLower(raw)
	text := visibleText(raw)
	scripts := strings.Count(lower, "<script")

	switch {
	case scripts > 0 && len(text) < 200:
		return true
	case strings.Contains(lower, `<div id="root"></div>`),
		strings.Contains(lower, `<div id="app"></div>`),
		strings.Contains(lower, `<div id="__next"></div>`):
		return true
	case reNoscript.MatchString(lower):
		return true
	case scripts > 10 && len(text) < 500:
		return true
	}
	return false
}

// challengeMarkers appear in bot-protection interstitials served instead of
// the requested page.
var challengeMarkers = []string{
	"<title>just a moment...</title>",
	"cf-browser-verification",
	"challenge-platform",
	"<title>attention required! | cloudflare</title>",
	"<title>access denied</title>",
	"g-recaptcha",
	"h-captcha",
}

// IsChallenge reports whether raw HTML is a bot-protection page. A session
// treats such a load as failed so the next engine gets a turn.
func IsChallenge(raw string) bool {
	lower := strings.ToLower(raw)
	for _, m := range challengeMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// visibleText extracts the text inside <body>, skipping script, style and
// noscript content.
func visibleText(raw string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(raw))
	var buf strings.Builder
	inBody := false
	skipDepth := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return buf.String()
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "body":
				inBody = true
			case "script", "style", "noscript":
				skipDepth++
			}
		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "script", "style", "noscript":
				if skipDepth > 0 {
					skipDepth--
				}
			}
		case html.TextToken:
			if inBody && skipDepth == 0 {
				if text := strings.TrimSpace(string(tokenizer.Text())); text != "" {
					buf.WriteString(text)
					buf.WriteByte(' ')
				}
			}
		}
	}
}
