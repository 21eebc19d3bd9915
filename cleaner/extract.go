package cleaner

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Link is an anchor resolved against its page URL.
type Link struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

// Image is an <img> resolved against its page URL.
type Image struct {
	Src string `json:"src"`
	Alt string `json:"alt,omitempty"`
}

// ExtractLinks returns the http(s) links of rawHTML that stay on the host
// of sourceURL, in document order and without fragments. Each absolute URL
// appears once.
func ExtractLinks(rawHTML string, sourceURL string) []Link {
	return collect(rawHTML, sourceURL, "a[href]",
		func(s *goquery.Selection) string {
			href, _ := s.Attr("href")
			if strings.TrimSpace(href) == "#" {
				return ""
			}
			return href
		},
		func(base, u *url.URL, s *goquery.Selection) (Link, bool) {
			if !strings.EqualFold(u.Host, base.Host) {
				return Link{}, false
			}
			u.Fragment = ""
			return Link{Href: u.String(), Text: CleanSelection(s)}, true
		},
		func(l Link) string { return l.Href },
	)
}

// ExtractImages returns the images of rawHTML with absolute URLs. A data:
// placeholder in src gives way to data-src, which is how lazy loading
// templates mark the real image.
func ExtractImages(rawHTML string, sourceURL string) []Image {
	return collect(rawHTML, sourceURL, "img[src], img[data-src]",
		func(s *goquery.Selection) string {
			src, _ := s.Attr("src")
			if src == "" || strings.HasPrefix(src, "data:") {
				src, _ = s.Attr("data-src")
			}
			return src
		},
		func(_, u *url.URL, s *goquery.Selection) (Image, bool) {
			alt, _ := s.Attr("alt")
			return Image{Src: u.String(), Alt: strings.TrimSpace(alt)}, true
		},
		func(img Image) string { return img.Src },
	)
}

// collect resolves the attribute picked from each selector match against
// sourceURL, keeps http(s) results accepted by build and drops repeats of
// the same key. It never returns nil.
func collect[T any](
	rawHTML, sourceURL, selector string,
	pick func(*goquery.Selection) string,
	build func(base, u *url.URL, s *goquery.Selection) (T, bool),
	key func(T) string,
) []T {
	out := []T{}
	base, err := url.Parse(sourceURL)
	if err != nil {
		return out
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return out
	}

	seen := make(map[string]bool)
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		ref := strings.TrimSpace(pick(s))
		if ref == "" {
			return
		}
		u, err := base.Parse(ref)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		item, ok := build(base, u, s)
		if !ok || seen[key(item)] {
			return
		}
		seen[key(item)] = true
		out = append(out, item)
	})
	return out
}
