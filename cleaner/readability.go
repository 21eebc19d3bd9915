package cleaner

import (
	"log/slog"
	nurl "net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// minContentLength is the minimum TextContent length (in characters) for
// readability output to be considered valid.
const minContentLength = 50

// Article is the main content located by readability.
type Article struct {
	Title   string
	HTML    string
	Text    string
	Excerpt string
	Image   string
}

// ExtractContent runs the Mozilla Readability algorithm on rawHTML. The
// boolean is false when readability failed or located too little text, in
// which case the caller should fall back to a coarser extraction.
func ExtractContent(rawHTML string, sourceURL string) (Article, bool) {
	parsedURL, err := nurl.Parse(sourceURL)
	if err != nil {
		slog.Warn("readability: invalid source URL",
			"url", sourceURL, "error", err,
		)
		return Article{}, false
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), parsedURL)
	if err != nil {
		slog.Warn("readability: extraction failed",
			"url", sourceURL, "error", err,
		)
		return Article{}, false
	}

	text := Clean(article.Content)
	if len(text) < minContentLength {
		slog.Debug("readability: extracted content too short",
			"url", sourceURL, "length", len(text),
		)
		return Article{}, false
	}

	return Article{
		Title:   strings.TrimSpace(article.Title),
		HTML:    article.Content,
		Text:    text,
		Excerpt: strings.TrimSpace(article.Excerpt),
		Image:   article.Image,
	}, true
}
