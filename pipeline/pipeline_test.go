package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/use-agent/uniassist/models"
	"github.com/use-agent/uniassist/scraper"
	"github.com/use-agent/uniassist/store"
	"github.com/use-agent/uniassist/webhook"
)

type fakeScraper struct {
	mu       sync.Mutex
	results  map[string]scraper.Result
	calls    []string
	onScrape func()
}

func (f *fakeScraper) ScrapeSource(_ context.Context, src models.Source) scraper.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, src.ID)
	if f.onScrape != nil {
		f.onScrape()
	}
	return f.results[src.ID]
}

type fakeIndexer struct {
	records []models.StoredContent
	err     error
}

func (f *fakeIndexer) Rebuild(_ context.Context, records []models.StoredContent) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.records = records
	return len(records), nil
}

var (
	newsSource  = models.Source{ID: "campus-news", Name: "Campus News", URL: "https://uni.example/news/", Kind: models.KindNews, Active: true}
	eventSource = models.Source{ID: "campus-events", Name: "Campus Events", URL: "https://uni.example/events/", Kind: models.KindEvent, Active: true}
)

func newsItems() []models.ContentRecord {
	return []models.ContentRecord{
		{Title: "Campus opens", URL: "https://uni.example/news/campus-opens", Body: "A new campus opens in the town centre.", Kind: models.KindNews},
		{Title: "Grant awarded", URL: "https://uni.example/news/grant", Body: "Battery research receives funding.", Kind: models.KindNews},
	}
}

func setup(t *testing.T, scr *fakeScraper, opts Options) (*Pipeline, *store.Store, *fakeIndexer) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.SyncSources(context.Background(), []models.Source{newsSource, eventSource}); err != nil {
		t.Fatal(err)
	}
	ix := &fakeIndexer{}
	return New(scr, st, ix, opts), st, ix
}

func TestRefresh_Idempotent(t *testing.T) {
	scr := &fakeScraper{results: map[string]scraper.Result{
		newsSource.ID: {Items: newsItems()},
	}}
	p, st, _ := setup(t, scr, Options{})
	ctx := context.Background()

	first, err := p.Refresh(ctx, newsSource)
	if err != nil {
		t.Fatal(err)
	}
	if first.Processed != 2 || first.Added != 2 || first.Updated != 0 {
		t.Errorf("first refresh = %+v", first)
	}

	second, err := p.Refresh(ctx, newsSource)
	if err != nil {
		t.Fatal(err)
	}
	if second.Added != 0 || second.Updated != 2 || second.Changed != 0 {
		t.Errorf("second refresh = %+v, want added=0 updated=2", second)
	}

	rows, _ := st.ListContents(ctx, models.ContentFilter{SourceID: newsSource.ID})
	if len(rows) != 2 {
		t.Errorf("stored rows = %d, want 2", len(rows))
	}

	logs, _ := st.ListLogs(ctx, newsSource.ID, 0)
	if len(logs) != 2 {
		t.Fatalf("logs = %d, want 2", len(logs))
	}
	for _, l := range logs {
		if !l.Success || l.EndTime == nil || l.Processed != 2 {
			t.Errorf("log = %+v", l)
		}
	}

	src, _ := st.GetSource(ctx, newsSource.ID)
	if src.LastScraped == nil {
		t.Error("last_scraped not set after success")
	}
}

func TestRefresh_CountsChanged(t *testing.T) {
	scr := &fakeScraper{results: map[string]scraper.Result{newsSource.ID: {Items: newsItems()}}}
	p, _, _ := setup(t, scr, Options{})
	ctx := context.Background()
	if _, err := p.Refresh(ctx, newsSource); err != nil {
		t.Fatal(err)
	}

	items := newsItems()
	items[0].Title = "Sports centre refurbishment"
	items[0].Body = "The gym and swimming pool close for the summer while changing rooms are rebuilt."
	scr.results[newsSource.ID] = scraper.Result{Items: items}

	stats, err := p.Refresh(ctx, newsSource)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Updated != 2 || stats.Changed != 1 {
		t.Errorf("stats = %+v, want updated=2 changed=1", stats)
	}
}

func TestRefresh_ScrapeFailure(t *testing.T) {
	cause := models.NewScrapeError(models.ErrCodeNavigation, "listing navigation failed", nil)
	scr := &fakeScraper{results: map[string]scraper.Result{newsSource.ID: {Err: cause}}}
	p, st, _ := setup(t, scr, Options{})
	ctx := context.Background()

	stats, err := p.Refresh(ctx, newsSource)
	if !errors.Is(err, cause) {
		t.Fatalf("err = %v, want scrape error", err)
	}
	if stats.Error == "" {
		t.Error("stats.Error not set")
	}

	logs, _ := st.ListLogs(ctx, newsSource.ID, 0)
	if len(logs) != 1 || logs[0].Success || logs[0].EndTime == nil {
		t.Fatalf("logs = %+v", logs)
	}
	if !strings.Contains(logs[0].ErrorMessage, "NAVIGATION_FAILED") {
		t.Errorf("error message = %q", logs[0].ErrorMessage)
	}
	src, _ := st.GetSource(ctx, newsSource.ID)
	if src.LastScraped != nil {
		t.Error("last_scraped set after failure")
	}
}

func TestRefresh_UpsertFailureKeepsPriorRows(t *testing.T) {
	good := newsItems()
	items := []models.ContentRecord{good[0], {Title: "Broken", Kind: models.KindNews}, good[1]}
	scr := &fakeScraper{results: map[string]scraper.Result{newsSource.ID: {Items: items}}}
	p, st, _ := setup(t, scr, Options{})
	ctx := context.Background()

	stats, err := p.Refresh(ctx, newsSource)
	if err == nil {
		t.Fatal("expected upsert error")
	}
	if stats.Added != 1 {
		t.Errorf("added = %d, want 1 before the failure", stats.Added)
	}

	rows, _ := st.ListContents(ctx, models.ContentFilter{})
	if len(rows) != 1 || rows[0].Title != "Campus opens" {
		t.Errorf("rows = %+v", rows)
	}
	logs, _ := st.ListLogs(ctx, newsSource.ID, 0)
	if len(logs) != 1 || logs[0].Success || logs[0].ErrorMessage == "" {
		t.Errorf("log = %+v", logs)
	}
}

func TestRefresh_CancelledContextStillCompletesLog(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scr := &fakeScraper{
		results:  map[string]scraper.Result{newsSource.ID: {Err: context.Canceled}},
		onScrape: cancel,
	}
	p, st, _ := setup(t, scr, Options{})

	if _, err := p.Refresh(ctx, newsSource); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	logs, _ := st.ListLogs(context.Background(), newsSource.ID, 0)
	if len(logs) != 1 || logs[0].EndTime == nil || logs[0].Success {
		t.Errorf("logs = %+v", logs)
	}
}

func TestRefreshAll_ContinuesAfterFailure(t *testing.T) {
	scr := &fakeScraper{results: map[string]scraper.Result{
		eventSource.ID: {Err: errors.New("browser unavailable")},
		newsSource.ID:  {Items: newsItems()},
	}}
	p, st, _ := setup(t, scr, Options{})
	ctx := context.Background()

	all, err := p.RefreshAll(ctx)
	if err == nil || !strings.Contains(err.Error(), eventSource.ID) {
		t.Errorf("err = %v, want failure for %s", err, eventSource.ID)
	}
	if len(all) != 2 || len(scr.calls) != 2 {
		t.Fatalf("stats = %+v, calls = %v", all, scr.calls)
	}

	rows, _ := st.ListContents(ctx, models.ContentFilter{SourceID: newsSource.ID})
	if len(rows) != 2 {
		t.Errorf("news rows = %d, want 2", len(rows))
	}
}

func TestRefreshByID(t *testing.T) {
	scr := &fakeScraper{results: map[string]scraper.Result{newsSource.ID: {Items: newsItems()}}}
	p, _, _ := setup(t, scr, Options{})

	if _, err := p.RefreshByID(context.Background(), newsSource.ID); err != nil {
		t.Fatal(err)
	}
	_, err := p.RefreshByID(context.Background(), "nope")
	var se *models.ScrapeError
	if !errors.As(err, &se) || se.Code != models.ErrCodeSourceNotFound {
		t.Errorf("err = %v, want %s", err, models.ErrCodeSourceNotFound)
	}
}

func TestRebuildIndex(t *testing.T) {
	scr := &fakeScraper{results: map[string]scraper.Result{newsSource.ID: {Items: newsItems()}}}
	p, _, ix := setup(t, scr, Options{})
	ctx := context.Background()
	if _, err := p.Refresh(ctx, newsSource); err != nil {
		t.Fatal(err)
	}

	n, err := p.RebuildIndex(ctx)
	if err != nil || n != 2 || len(ix.records) != 2 {
		t.Errorf("RebuildIndex = %d, %v (indexed %d)", n, err, len(ix.records))
	}

	ix.err = errors.New("model offline")
	if _, err := p.RebuildIndex(ctx); err == nil {
		t.Error("expected rebuild error")
	}
}

func TestRefresh_Webhook(t *testing.T) {
	events := make(chan webhook.Event, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var ev webhook.Event
		json.Unmarshal(body, &ev)
		events <- ev
	}))
	defer srv.Close()

	scr := &fakeScraper{results: map[string]scraper.Result{
		newsSource.ID:  {Items: newsItems()},
		eventSource.ID: {Err: errors.New("boom")},
	}}
	p, _, _ := setup(t, scr, Options{WebhookURL: srv.URL})
	p.Refresh(context.Background(), newsSource)
	p.Refresh(context.Background(), eventSource)

	got := map[string]string{}
	for range 2 {
		select {
		case ev := <-events:
			got[ev.SourceID] = ev.Type
		case <-time.After(5 * time.Second):
			t.Fatal("webhook not delivered")
		}
	}
	if got[newsSource.ID] != webhook.EventRefreshCompleted || got[eventSource.ID] != webhook.EventRefreshFailed {
		t.Errorf("events = %v", got)
	}
}
