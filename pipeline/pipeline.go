// Package pipeline refreshes sources into the content store and rebuilds
// the similarity index from it. Each refresh is recorded as a processing
// log.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/use-agent/uniassist/models"
	"github.com/use-agent/uniassist/scraper"
	"github.com/use-agent/uniassist/store"
	"github.com/use-agent/uniassist/webhook"
)

// Scraper produces records for a source.
type Scraper interface {
	ScrapeSource(ctx context.Context, src models.Source) scraper.Result
}

// ContentStore persists sources, records and processing logs.
type ContentStore interface {
	GetSource(ctx context.Context, id string) (models.Source, error)
	ListSources(ctx context.Context, activeOnly bool) ([]models.Source, error)
	MarkScraped(ctx context.Context, id string, at time.Time) error
	UpsertContent(ctx context.Context, sourceID string, rec models.ContentRecord, now time.Time) (store.UpsertResult, error)
	ListContents(ctx context.Context, f models.ContentFilter) ([]models.StoredContent, error)
	CreateLog(ctx context.Context, sourceID string, start time.Time) (*models.ProcessingLog, error)
	CompleteLog(ctx context.Context, l *models.ProcessingLog) error
}

// Indexer rebuilds the similarity index.
type Indexer interface {
	Rebuild(ctx context.Context, records []models.StoredContent) (int, error)
}

// Stats summarises one source refresh.
type Stats struct {
	SourceID  string `json:"source_id"`
	LogID     string `json:"log_id"`
	Processed int    `json:"items_processed"`
	Added     int    `json:"items_added"`
	Updated   int    `json:"items_updated"`
	Changed   int    `json:"items_changed"`
	Error     string `json:"error,omitempty"`
}

// Options configures a Pipeline.
type Options struct {
	WebhookURL    string
	WebhookSecret string

	// Now defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Pipeline runs refreshes. Refreshes of the same source are serialised;
// different sources may refresh concurrently.
type Pipeline struct {
	scr  Scraper
	st   ContentStore
	ix   Indexer
	opts Options
	log  *slog.Logger
	hook *webhook.Notifier

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Pipeline. ix may be nil when RebuildIndex is never called.
func New(scr Scraper, st ContentStore, ix Indexer, opts Options) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		scr:   scr,
		st:    st,
		ix:    ix,
		opts:  opts,
		log:   log,
		hook:  webhook.NewNotifier(opts.WebhookURL, opts.WebhookSecret),
		locks: make(map[string]*sync.Mutex),
	}
}

func (p *Pipeline) sourceLock(id string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[id]
	if !ok {
		l = &sync.Mutex{}
		p.locks[id] = l
	}
	return l
}

// RefreshByID refreshes the stored source with the given ID.
func (p *Pipeline) RefreshByID(ctx context.Context, id string) (Stats, error) {
	src, err := p.st.GetSource(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return Stats{SourceID: id}, models.NewScrapeError(models.ErrCodeSourceNotFound, "source "+id+" not found", nil)
	}
	if err != nil {
		return Stats{SourceID: id}, err
	}
	return p.Refresh(ctx, src)
}

// Refresh scrapes src and upserts every record on (source, url). A scrape
// failure or an upsert failure marks the processing log failed; records
// upserted before an upsert failure are kept.
func (p *Pipeline) Refresh(ctx context.Context, src models.Source) (Stats, error) {
	lock := p.sourceLock(src.ID)
	lock.Lock()
	defer lock.Unlock()

	stats := Stats{SourceID: src.ID}
	plog, err := p.st.CreateLog(ctx, src.ID, p.opts.Now())
	if err != nil {
		return stats, fmt.Errorf("pipeline: create log: %w", err)
	}
	stats.LogID = plog.ID
	p.log.Info("pipeline: refresh started", "source", src.ID, "url", src.URL)

	res := p.scr.ScrapeSource(ctx, src)
	if !res.OK() {
		return p.fail(ctx, src, plog, stats, res.Err)
	}

	stats.Processed = len(res.Items)
	now := p.opts.Now()
	for _, rec := range res.Items {
		up, err := p.st.UpsertContent(ctx, src.ID, rec, now)
		if err != nil {
			return p.fail(ctx, src, plog, stats, fmt.Errorf("upsert %s: %w", rec.URL, err))
		}
		switch {
		case up.Created:
			stats.Added++
		case up.Changed:
			stats.Updated++
			stats.Changed++
		default:
			stats.Updated++
		}
	}

	done := context.WithoutCancel(ctx)
	p.finish(plog, stats, true, "")
	if err := p.st.CompleteLog(done, plog); err != nil {
		return stats, fmt.Errorf("pipeline: complete log: %w", err)
	}
	if err := p.st.MarkScraped(done, src.ID, now); err != nil {
		p.log.Warn("pipeline: mark scraped failed", "source", src.ID, "error", err)
	}

	p.log.Info("pipeline: refresh completed",
		"source", src.ID,
		"processed", stats.Processed,
		"added", stats.Added,
		"updated", stats.Updated,
		"changed", stats.Changed,
	)
	p.notify(webhook.EventRefreshCompleted, src.ID, stats)
	return stats, nil
}

// fail completes plog as failed and returns cause. The log is written even
// when ctx is already cancelled.
func (p *Pipeline) fail(ctx context.Context, src models.Source, plog *models.ProcessingLog, stats Stats, cause error) (Stats, error) {
	stats.Error = cause.Error()
	p.finish(plog, stats, false, cause.Error())
	if err := p.st.CompleteLog(context.WithoutCancel(ctx), plog); err != nil {
		p.log.Error("pipeline: complete log failed", "source", src.ID, "error", err)
	}
	p.log.Warn("pipeline: refresh failed", "source", src.ID, "code", models.ErrorCode(cause), "error", cause)
	p.notify(webhook.EventRefreshFailed, src.ID, stats)
	return stats, cause
}

func (p *Pipeline) finish(plog *models.ProcessingLog, stats Stats, success bool, msg string) {
	end := p.opts.Now()
	plog.EndTime = &end
	plog.Success = success
	plog.ErrorMessage = msg
	plog.Processed = stats.Processed
	plog.Added = stats.Added
	plog.Updated = stats.Updated
	plog.Changed = stats.Changed
}

// RefreshAll refreshes every active source in order, continuing past
// failures. The returned error joins the per-source failures.
func (p *Pipeline) RefreshAll(ctx context.Context) ([]Stats, error) {
	sources, err := p.st.ListSources(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("pipeline: list sources: %w", err)
	}

	all := make([]Stats, 0, len(sources))
	var errs []error
	for _, src := range sources {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		stats, err := p.Refresh(ctx, src)
		all = append(all, stats)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.ID, err))
		}
	}
	return all, errors.Join(errs...)
}

// RebuildIndex re-embeds every stored record. Returns the number indexed.
func (p *Pipeline) RebuildIndex(ctx context.Context) (int, error) {
	if p.ix == nil {
		return 0, errors.New("pipeline: no index configured")
	}
	records, err := p.st.ListContents(ctx, models.ContentFilter{})
	if err != nil {
		return 0, fmt.Errorf("pipeline: load records: %w", err)
	}
	n, err := p.ix.Rebuild(ctx, records)
	if err != nil {
		return 0, err
	}
	p.notify(webhook.EventIndexRebuilt, "", map[string]int{"records": n})
	return n, nil
}

func (p *Pipeline) notify(typ, sourceID string, data any) {
	p.hook.Notify(webhook.NewEvent(typ, sourceID, data))
}
