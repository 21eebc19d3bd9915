package cleaner

import (
	"bytes"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"script dropped, blocks separated", `<div><script>x</script><p>Hello</p><p>World</p></div>`, "Hello\nWorld"},
		{"empty", "", ""},
		{"whitespace only", "  \n\t ", ""},
		{"inline joined", "<p>Hello <b>big</b>   world</p>", "Hello big world"},
		{"style and noscript dropped", "<style>p{}</style><noscript>enable js</noscript><h2>Title</h2>", "Title"},
		{"newline runs collapsed", "<div><p>a</p>\n\n\n<div><div>b</div></div></div>", "a\nb"},
		{"line breaks", "one<br>two<br/>three", "one\ntwo\nthree"},
		{"entities", "<p>Fees&nbsp;&amp;&nbsp;funding</p>", "Fees & funding"},
		{"list items", "<ul><li>One</li><li>Two</li></ul>", "One\nTwo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.in); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCleanNode_Nil(t *testing.T) {
	if got := CleanNode(nil); got != "" {
		t.Errorf("CleanNode(nil) = %q, want empty", got)
	}
	if got := CleanSelection(nil); got != "" {
		t.Errorf("CleanSelection(nil) = %q, want empty", got)
	}
}

func TestCleanNode_DoesNotMutate(t *testing.T) {
	src := `<html><head></head><body><div><script>track()</script><p>Keep</p></div></body></html>`
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	var before bytes.Buffer
	if err := html.Render(&before, doc); err != nil {
		t.Fatal(err)
	}

	if got := CleanNode(doc); got != "Keep" {
		t.Errorf("CleanNode = %q, want %q", got, "Keep")
	}

	var after bytes.Buffer
	if err := html.Render(&after, doc); err != nil {
		t.Fatal(err)
	}
	if before.String() != after.String() {
		t.Errorf("document modified:\nbefore %s\nafter  %s", before.String(), after.String())
	}
}

func TestCleanSelection(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<div class="card"><h3>Open day</h3><span>Saturday</span></div><div class="card"><h3>Graduation</h3></div>`))
	if err != nil {
		t.Fatal(err)
	}
	got := CleanSelection(doc.Find(".card"))
	want := "Open day\nSaturday\nGraduation"
	if got != want {
		t.Errorf("CleanSelection = %q, want %q", got, want)
	}
}

func TestExtractLinks(t *testing.T) {
	page := `<a href="/news/one">One</a>
<a href="/news/one#top">One again</a>
<a href="#">Skip</a>
<a href="mailto:a@b.c">Mail</a>
<a href="https://other.example/news/x">Elsewhere</a>
<a href="two"><span>Two</span></a>`
	links := ExtractLinks(page, "https://uni.example/news/")
	if len(links) != 2 {
		t.Fatalf("got %d links: %+v", len(links), links)
	}
	if links[0].Href != "https://uni.example/news/one" || links[0].Text != "One" {
		t.Errorf("links[0] = %+v", links[0])
	}
	if links[1].Href != "https://uni.example/news/two" || links[1].Text != "Two" {
		t.Errorf("links[1] = %+v", links[1])
	}
}

func TestExtractImages(t *testing.T) {
	page := `<img src="data:image/gif;base64,R0lG" data-src="/img/lazy.jpg" alt=" Lazy ">
<img src="https://cdn.example/a.png">
<img src="/img/lazy.jpg">`
	imgs := ExtractImages(page, "https://uni.example/events/x")
	if len(imgs) != 2 {
		t.Fatalf("got %d images: %+v", len(imgs), imgs)
	}
	if imgs[0].Src != "https://uni.example/img/lazy.jpg" || imgs[0].Alt != "Lazy" {
		t.Errorf("imgs[0] = %+v", imgs[0])
	}
	if imgs[1].Src != "https://cdn.example/a.png" {
		t.Errorf("imgs[1] = %+v", imgs[1])
	}
}

func TestStripSelectors(t *testing.T) {
	page := `<body><nav>Menu</nav><div class="main"><p>Body text</p></div><div class="share">Tweet</div><footer>Contact</footer></body>`
	if got := Clean(StripSelectors(page, Chrome...)); got != "Body text" {
		t.Errorf("StripSelectors(Chrome) = %q, want %q", got, "Body text")
	}
	if got := StripSelectors("<p>x</p>"); got != "<p>x</p>" {
		t.Errorf("no selectors should return input unchanged, got %q", got)
	}
}

func TestSanitize(t *testing.T) {
	got := Sanitize(`<p onclick="steal()">Hi <a href="/x">there</a></p><script>alert(1)</script><iframe src="x"></iframe>`)
	if strings.Contains(got, "script") || strings.Contains(got, "onclick") || strings.Contains(got, "iframe") {
		t.Errorf("unsafe markup survived: %q", got)
	}
	if !strings.Contains(got, `<a href="/x"`) {
		t.Errorf("link dropped: %q", got)
	}
	if Sanitize("") != "" {
		t.Error("Sanitize(\"\") should be empty")
	}
}

func TestRenderer_ToMarkdown(t *testing.T) {
	r := NewRenderer()
	md, err := r.ToMarkdown("<h1>Welcome week</h1><p>See <strong>you</strong> there.</p>", "uni.example")
	if err != nil {
		t.Fatalf("ToMarkdown: %v", err)
	}
	if !strings.Contains(md, "# Welcome week") || !strings.Contains(md, "**you**") {
		t.Errorf("unexpected markdown: %q", md)
	}
	if md, _ := r.ToMarkdown("", "uni.example"); md != "" {
		t.Errorf("empty input gave %q", md)
	}
}

func TestExtractContent(t *testing.T) {
	para := "The university has opened a new science building on the waterside campus for students and staff. "
	page := `<html><head><title>New building</title></head><body>
<nav><a href="/">Home</a></nav>
<article><h1>New building</h1><p>` + strings.Repeat(para, 8) + `</p><p>` + strings.Repeat(para, 6) + `</p></article>
<footer>Contact us</footer></body></html>`

	art, ok := ExtractContent(page, "https://uni.example/news/new-building")
	if !ok {
		t.Fatal("expected readability to succeed")
	}
	if !strings.Contains(art.Text, "new science building") {
		t.Errorf("article text missing body: %q", art.Text)
	}

	if _, ok := ExtractContent("<p>tiny</p>", "https://uni.example/"); ok {
		t.Error("expected failure on tiny page")
	}
}

func TestPruneContent(t *testing.T) {
	story := strings.Repeat("Students from the engineering school won the regional robotics final. ", 5)
	page := `<html><body>
<nav><a href="/">Home</a></nav>
<div class="quick-links"><a href="/apply">Apply</a> <a href="/visit">Visit</a></div>
<div class="story"><p>` + story + `</p></div>
<footer>Contact us</footer>
</body></html>`

	got := PruneContent(page)
	if !strings.Contains(got, "regional robotics final") {
		t.Errorf("story dropped: %q", got)
	}
	for _, unwanted := range []string{"Apply", "Home", "Contact us"} {
		if strings.Contains(got, unwanted) {
			t.Errorf("kept boilerplate %q: %q", unwanted, got)
		}
	}
}

func TestTruncateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{"fits", "short text", 10, "short text"},
		{"no limit", "short text", 0, "short text"},
		{"word boundary", "one two three four five six", 4, "one two…"},
		{"no whitespace", "abcdefghijklmnop", 2, "abcdef…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateTokens(tt.text, tt.max); got != tt.want {
				t.Errorf("TruncateTokens(%q, %d) = %q, want %q", tt.text, tt.max, got, tt.want)
			}
		})
	}
}

func TestConvertToCitations(t *testing.T) {
	in := "See [Open day](https://uni.example/open-day), [again](https://uni.example/open-day) or [email us](mailto:a@uni.example)."
	want := "See [Open day][1], [again][1] or [email us](mailto:a@uni.example).\n\n---\n[1]: https://uni.example/open-day"
	if got := ConvertToCitations(in); got != want {
		t.Errorf("ConvertToCitations() =\n%q\nwant\n%q", got, want)
	}

	plain := "No links, only [a section](#dates)."
	if got := ConvertToCitations(plain); got != plain {
		t.Errorf("in-page link rewritten: %q", got)
	}
}
