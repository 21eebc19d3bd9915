package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/uniassist/config"
	"github.com/use-agent/uniassist/embedding"
	"github.com/use-agent/uniassist/models"
)

func testConfig(url string) config.LLMConfig {
	return config.LLMConfig{
		Endpoint:    url,
		Model:       "llama3",
		MaxTokens:   64,
		Temperature: 0.7,
		Timeout:     5 * time.Second,
	}
}

func TestClient_Generate(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"response":"  Open day is on Saturday. ","done":true}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	out, err := c.Generate(context.Background(), "When is open day?")
	if err != nil {
		t.Fatal(err)
	}
	if out != "Open day is on Saturday." {
		t.Errorf("Generate = %q", out)
	}
	if got.Stream || got.Model != "llama3" || got.Options.NumPredict != 64 {
		t.Errorf("request = %+v", got)
	}
}

func TestClient_GenerateErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
	}{
		{"model missing", http.StatusNotFound, `{"error":"model 'llama3' not found"}`, models.ErrCodeLLMFailure},
		{"rate limited", http.StatusTooManyRequests, `{}`, models.ErrCodeRateLimited},
		{"server error", http.StatusInternalServerError, `oops`, models.ErrCodeLLMFailure},
		{"empty response", http.StatusOK, `{"response":"","done":true}`, models.ErrCodeLLMFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(testConfig(srv.URL)).Generate(context.Background(), "q")
			var se *models.ScrapeError
			if !errors.As(err, &se) || se.Code != tt.wantCode {
				t.Errorf("err = %v, want code %s", err, tt.wantCode)
			}
		})
	}
}

func TestClient_Available(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"llama3:latest"},{"name":"all-minilm:latest"}]}`))
	}))
	defer srv.Close()

	if !NewClient(testConfig(srv.URL)).Available(context.Background()) {
		t.Error("llama3 should match llama3:latest")
	}
	cfg := testConfig(srv.URL)
	cfg.Model = "mistral"
	if NewClient(cfg).Available(context.Background()) {
		t.Error("mistral is not pulled")
	}
}

type stubRetriever struct {
	hits []embedding.Metadata
	err  error
	kind models.ContentKind
	k    int
}

func (s *stubRetriever) Retrieve(_ context.Context, _ string, k int, kind models.ContentKind) ([]embedding.Metadata, error) {
	s.k, s.kind = k, kind
	return s.hits, s.err
}

type stubGenerator struct {
	prompt string
	calls  int
	err    error
}

func (s *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	s.calls++
	s.prompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return "answer", nil
}

func TestAssistant_AskWithContext(t *testing.T) {
	day := time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC)
	ret := &stubRetriever{hits: []embedding.Metadata{
		{Title: "Open day", URL: "https://uni.example/events/open-day", Summary: "Meet lecturers.", PublishedDate: &day},
	}}
	gen := &stubGenerator{}
	a := NewAssistant(ret, gen, 0)

	ans, err := a.Ask(context.Background(), " When is open day? ", models.KindEvent)
	if err != nil {
		t.Fatal(err)
	}
	if ans.Response != "answer" || len(ans.Sources) != 1 {
		t.Errorf("answer = %+v", ans)
	}
	if ret.k != 3 || ret.kind != models.KindEvent {
		t.Errorf("retrieve called with k=%d kind=%q", ret.k, ret.kind)
	}
	for _, want := range []string{"Context:", "Open day (3 May 2025)", "https://uni.example/events/open-day", "Meet lecturers.", "Query: When is open day?"} {
		if !strings.Contains(gen.prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, gen.prompt)
		}
	}
}

func TestAssistant_FallsBackToBareQuery(t *testing.T) {
	tests := []struct {
		name string
		ret  Retriever
	}{
		{"retrieval error", &stubRetriever{err: errors.New("model offline")}},
		{"no hits", &stubRetriever{}},
		{"no retriever", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &stubGenerator{}
			ans, err := NewAssistant(tt.ret, gen, 3).Ask(context.Background(), "Where is the library?", "")
			if err != nil {
				t.Fatal(err)
			}
			if gen.prompt != "Where is the library?" || len(ans.Sources) != 0 {
				t.Errorf("prompt = %q, sources = %v", gen.prompt, ans.Sources)
			}
		})
	}
}

func TestAssistant_OffTopic(t *testing.T) {
	gen := &stubGenerator{}
	ans, err := NewAssistant(nil, gen, 3).Ask(context.Background(), "How do I HACK the wifi?", "")
	if err != nil {
		t.Fatal(err)
	}
	if !ans.OffTopic || ans.Response != RefusalMessage || gen.calls != 0 {
		t.Errorf("answer = %+v, model calls = %d", ans, gen.calls)
	}
}

func TestAssistant_Errors(t *testing.T) {
	a := NewAssistant(nil, &stubGenerator{}, 3)
	if _, err := a.Ask(context.Background(), "   ", ""); err == nil {
		t.Error("expected error for empty query")
	}

	failing := NewAssistant(nil, &stubGenerator{err: models.NewScrapeError(models.ErrCodeLLMFailure, "down", nil)}, 3)
	if _, err := failing.Ask(context.Background(), "hello", ""); err == nil {
		t.Error("expected generation error")
	}
}
