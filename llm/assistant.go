// Package llm answers questions about university news and events with a
// local generation model, grounding each prompt in retrieved content.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/use-agent/uniassist/cleaner"
	"github.com/use-agent/uniassist/embedding"
	"github.com/use-agent/uniassist/models"
)

// RefusalMessage is returned instead of a model answer for off-topic
// questions.
const RefusalMessage = "I can only help with questions about university news, events and services."

// summaryTokens caps each summary in the context block.
const summaryTokens = 120

var offTopicKeywords = []string{
	"hack", "crack", "illegal", "pirate", "warez",
	"drug", "weapon", "exploit", "vulnerability",
}

// Retriever finds content related to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, kind models.ContentKind) ([]embedding.Metadata, error)
}

// Generator completes a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Answer is the assistant's reply to one question.
type Answer struct {
	Query    string               `json:"query"`
	Response string               `json:"response"`
	Sources  []embedding.Metadata `json:"sources,omitempty"`
	OffTopic bool                 `json:"off_topic,omitempty"`
}

// Assistant combines retrieval and generation.
type Assistant struct {
	ret Retriever
	gen Generator
	k   int
	log *slog.Logger
}

// NewAssistant creates an Assistant that retrieves k records per question.
// ret may be nil, in which case every prompt is the bare question.
func NewAssistant(ret Retriever, gen Generator, k int) *Assistant {
	if k <= 0 {
		k = 3
	}
	return &Assistant{ret: ret, gen: gen, k: k, log: slog.Default()}
}

// IsOffTopic reports whether query contains a blocked keyword.
func IsOffTopic(query string) bool {
	q := strings.ToLower(query)
	for _, kw := range offTopicKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// Ask answers query. kind narrows retrieval to news or events when set.
// Retrieval failures are logged and the model is asked the bare question;
// generation failures are returned.
func (a *Assistant) Ask(ctx context.Context, query string, kind models.ContentKind) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "query is required", nil)
	}
	if IsOffTopic(query) {
		a.log.Info("llm: off-topic query refused")
		return &Answer{Query: query, Response: RefusalMessage, OffTopic: true}, nil
	}

	var hits []embedding.Metadata
	if a.ret != nil {
		var err error
		hits, err = a.ret.Retrieve(ctx, query, a.k, kind)
		if err != nil {
			a.log.Warn("llm: retrieval failed, answering without context", "error", err)
			hits = nil
		}
	}

	resp, err := a.gen.Generate(ctx, BuildPrompt(query, hits))
	if err != nil {
		return nil, err
	}
	return &Answer{Query: query, Response: resp, Sources: hits}, nil
}

// BuildPrompt renders the retrieved records as a context block followed by
// the query. With no records the prompt is the query alone.
func BuildPrompt(query string, hits []embedding.Metadata) string {
	if len(hits) == 0 {
		return query
	}
	var b strings.Builder
	b.WriteString("Context:\n")
	for i, h := range hits {
		fmt.Fprintf(&b, "%d. %s", i+1, h.Title)
		if h.PublishedDate != nil {
			fmt.Fprintf(&b, " (%s)", h.PublishedDate.Format("2 January 2006"))
		}
		b.WriteByte('\n')
		if h.URL != "" {
			fmt.Fprintf(&b, "   %s\n", h.URL)
		}
		if h.Summary != "" {
			fmt.Fprintf(&b, "   %s\n", cleaner.TruncateTokens(h.Summary, summaryTokens))
		}
	}
	b.WriteString("Query: ")
	b.WriteString(query)
	return b.String()
}
