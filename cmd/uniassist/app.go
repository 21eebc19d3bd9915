package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/use-agent/uniassist/cache"
	"github.com/use-agent/uniassist/config"
	"github.com/use-agent/uniassist/embedding"
	"github.com/use-agent/uniassist/engine"
	"github.com/use-agent/uniassist/llm"
	"github.com/use-agent/uniassist/pipeline"
	"github.com/use-agent/uniassist/scraper"
	"github.com/use-agent/uniassist/store"
)

// app holds the wired components shared by the subcommands.
type app struct {
	store     *store.Store
	memory    *engine.DomainMemory
	scraper   *scraper.Scraper
	cache     *cache.Cache
	index     *embedding.Index
	pipeline  *pipeline.Pipeline
	llm       *llm.Client
	assistant *llm.Assistant
}

// newApp opens the store, syncs configured sources into it and wires the
// scraper, index, pipeline and assistant. Close releases the store and the
// query cache.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	sources, err := config.LoadSources(cfg.Scraper.SourcesFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Warn("app: sources file not found, using stored sources", "path", cfg.Scraper.SourcesFile)
	case err != nil:
		st.Close()
		return nil, err
	default:
		if err := st.SyncSources(ctx, sources); err != nil {
			st.Close()
			return nil, fmt.Errorf("sync sources: %w", err)
		}
		slog.Info("app: sources synced", "count", len(sources))
	}

	factories, err := engine.Factories(cfg.Browser)
	if err != nil {
		st.Close()
		return nil, err
	}
	memory := engine.NewDomainMemory(cfg.Browser.EngineMemoryTTL)
	sessOpts := engine.SessionOptionsFor(cfg.Browser)
	sessOpts.Memory = memory
	scr := scraper.New(func() *engine.Session {
		return engine.NewSession(factories, sessOpts)
	}, scraper.Options{MaxItems: cfg.Scraper.DefaultMaxItems})

	emb, err := embedding.New(cfg.Embedding)
	if err != nil {
		memory.Stop()
		st.Close()
		return nil, err
	}
	qc := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	ix := embedding.NewIndex(cfg.Embedding.IndexDir, emb, embedding.Options{
		BatchSize:  cfg.Embedding.BatchSize,
		BodyPrefix: cfg.Embedding.BodyPrefix,
		Cache:      qc,
	})

	p := pipeline.New(scr, st, ix, pipeline.Options{
		WebhookURL:    cfg.Webhook.URL,
		WebhookSecret: cfg.Webhook.Secret,
	})

	lc := llm.NewClient(cfg.LLM)
	return &app{
		store:     st,
		memory:    memory,
		scraper:   scr,
		cache:     qc,
		index:     ix,
		pipeline:  p,
		llm:       lc,
		assistant: llm.NewAssistant(ix, lc, cfg.LLM.TopK),
	}, nil
}

func (a *app) Close() {
	a.cache.Close()
	a.memory.Stop()
	if err := a.store.Close(); err != nil {
		slog.Error("app: close store", "error", err)
	}
}
