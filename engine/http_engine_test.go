package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/use-agent/uniassist/config"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/news/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent")
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><title>News</title></head><body>
<div class="news-item"><h3> First </h3><a href="/news/first">Read</a></div>
<div class="news-item"><h3>Second</h3><a href="/news/second">Read</a></div>
</body></html>`))
	})
	mux.HandleFunc("/app/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><div id="root"></div><script src="/bundle.js"></script></body></html>`))
	})
	mux.HandleFunc("/feed.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPEngine_NavigateAndQuery(t *testing.T) {
	srv := newTestServer(t)
	e := NewHTTPEngine(config.BrowserConfig{PageLoadTimeout: 5 * time.Second})
	ctx := context.Background()
	if err := e.Open(ctx); err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if err := e.Navigate(ctx, srv.URL+"/news/"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	text, err := e.Text(ctx, ".news-item h3")
	if err != nil || text != "First" {
		t.Errorf("Text = %q, %v", text, err)
	}
	href, ok, err := e.Attr(ctx, ".news-item a", "href")
	if err != nil || !ok || href != "/news/first" {
		t.Errorf("Attr = %q, %v, %v", href, ok, err)
	}
	if _, ok, _ := e.Attr(ctx, ".news-item a", "data-id"); ok {
		t.Error("absent attribute reported present")
	}
	els, err := e.All(ctx, ".news-item")
	if err != nil || len(els) != 2 {
		t.Fatalf("All = %d, %v", len(els), err)
	}
	if v, _ := els[1].Attr("class"); v != "news-item" {
		t.Errorf("element class = %q", v)
	}
	html, err := e.HTML(ctx)
	if err != nil || len(html) == 0 {
		t.Errorf("HTML = %d bytes, %v", len(html), err)
	}
}

func TestHTTPEngine_Errors(t *testing.T) {
	srv := newTestServer(t)
	e := NewHTTPEngine(config.BrowserConfig{PageLoadTimeout: 5 * time.Second})
	ctx := context.Background()

	if err := e.Navigate(ctx, srv.URL+"/news/"); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Navigate before Open = %v, want ErrNotOpen", err)
	}
	if err := e.Open(ctx); err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if err := e.Navigate(ctx, srv.URL+"/missing"); err == nil {
		t.Error("expected error for 404")
	}
	if err := e.Navigate(ctx, srv.URL+"/feed.json"); err == nil {
		t.Error("expected error for non-html response")
	}
	if err := e.Navigate(ctx, srv.URL+"/app/"); !errors.Is(err, ErrNeedsBrowser) {
		t.Errorf("Navigate to script shell = %v, want ErrNeedsBrowser", err)
	}
	if _, err := e.Text(ctx, "h3"); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Text without a document = %v, want ErrNotOpen", err)
	}
}

func TestHTTPEngine_CloseIdempotent(t *testing.T) {
	e := NewHTTPEngine(config.BrowserConfig{})
	if err := e.Close(); err != nil {
		t.Errorf("Close on unopened engine: %v", err)
	}
	if err := e.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Error(err)
	}
	if err := e.Close(); err != nil {
		t.Error(err)
	}
}
