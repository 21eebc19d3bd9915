// Package embedding converts content into vectors and answers similarity
// queries over them.
//
// Usage:
//
//	emb, _ := embedding.New(cfg.Embedding)
//	ix := embedding.NewIndex(cfg.Embedding.IndexDir, emb, embedding.Options{})
//	n, err := ix.Rebuild(ctx, records)
//	hits, err := ix.Retrieve(ctx, "When is the next open day?", 3, models.KindEvent)
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/uniassist/config"
)

// Embedder converts text to vectors.
type Embedder interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embeddings for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector dimension, or 0 if not yet detected.
	Dimension() int

	// Model returns the model name.
	Model() string
}

// New creates the Embedder selected by cfg.Provider: "ollama", "openai"
// (any OpenAI-compatible /v1/embeddings server) or "hash" (offline,
// deterministic, no model).
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	switch cfg.Provider {
	case "", "ollama":
		return NewOllamaClient(cfg.Endpoint, cfg.Model, cfg.Timeout), nil
	case "openai":
		return NewOpenAIClient(cfg.Endpoint, cfg.Model, cfg.Dimension, cfg.Timeout, slog.Default()), nil
	case "hash":
		return NewHashEmbedder(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
}
