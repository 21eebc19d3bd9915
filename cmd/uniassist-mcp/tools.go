package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/uniassist/embedding"
	"github.com/use-agent/uniassist/models"
)

var kindEnum = mcp.Enum("news", "event")

// registerTools adds every uniassist tool to s.
func registerTools(s *server.MCPServer, c *apiClient, pollEvery time.Duration) {
	s.AddTool(mcp.NewTool("search_university_content",
		mcp.WithDescription("Semantic search over scraped university news and events. Returns the most similar items with their URLs and dates."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Free-text question or topic"),
		),
		mcp.WithNumber("k",
			mcp.Description("Number of results (default: 3, max: 50)"),
		),
		mcp.WithString("content_kind",
			mcp.Description("Restrict results to 'news' or 'event'"),
			kindEnum,
		),
	), handleSearch(c))

	s.AddTool(mcp.NewTool("ask_assistant",
		mcp.WithDescription("Ask the university assistant a question. The answer is generated by a local model grounded on the indexed content."),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The question to answer"),
		),
		mcp.WithString("content_kind",
			mcp.Description("Ground only on 'news' or 'event' content"),
			kindEnum,
		),
	), handleAsk(c))

	s.AddTool(mcp.NewTool("get_content",
		mcp.WithDescription("Fetch one stored news or event record as Markdown, with links turned into numbered citations."),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Content id from search_university_content"),
		),
	), handleGetContent(c))

	s.AddTool(mcp.NewTool("list_sources",
		mcp.WithDescription("List the configured university listing pages and when each was last scraped."),
	), handleListSources(c))

	s.AddTool(mcp.NewTool("refresh_sources",
		mcp.WithDescription("Scrape sources again and store new or changed items. Without source_id every active source is refreshed."),
		mcp.WithString("source_id",
			mcp.Description("Refresh only this source"),
		),
	), handleRefresh(c, pollEvery))
}

func handleSearch(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError("query is required"), nil
		}
		payload := models.RetrieveRequest{
			Query: query,
			K:     request.GetInt("k", 3),
			Kind:  request.GetString("content_kind", ""),
		}

		var hits []embedding.Metadata
		if err := c.call(ctx, http.MethodPost, "/api/v1/retrieve", payload, &hits); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(hits) == 0 {
			return mcp.NewToolResultText("No matching content found."), nil
		}

		var sb strings.Builder
		for i, h := range hits {
			fmt.Fprintf(&sb, "--- [%d] %s (id %d, %s, score %.2f) ---\n", i+1, h.Title, h.ID, h.Kind, h.Score)
			if h.PublishedDate != nil {
				fmt.Fprintf(&sb, "Date: %s\n", h.PublishedDate.Format("2 January 2006"))
			}
			fmt.Fprintf(&sb, "URL: %s\n", h.URL)
			if h.Summary != "" {
				sb.WriteString(h.Summary + "\n")
			}
			sb.WriteString("\n")
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleAsk(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		msg, err := request.RequireString("message")
		if err != nil {
			return mcp.NewToolResultError("message is required"), nil
		}
		payload := models.ChatRequest{
			Message: msg,
			Kind:    request.GetString("content_kind", ""),
		}

		var resp models.ChatResponse
		if err := c.call(ctx, http.MethodPost, "/api/v1/chat", payload, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		result := resp.Answer
		if len(resp.Sources) > 0 {
			result += "\n\n---\nSources:\n"
			for i, s := range resp.Sources {
				result += fmt.Sprintf("[%d] %s: %s\n", i+1, s.Title, s.URL)
			}
		}
		return mcp.NewToolResultText(result), nil
	}
}

func handleGetContent(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := request.GetInt("id", 0)
		if id <= 0 {
			return mcp.NewToolResultError("id must be a positive integer"), nil
		}

		q := url.Values{"format": {"markdown"}, "citations": {"true"}}
		var rec models.ContentResponse
		path := "/api/v1/contents/" + strconv.Itoa(id) + "?" + q.Encode()
		if err := c.call(ctx, http.MethodGet, path, nil, &rec); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("get content failed: %v", err)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Title: %s\nSource: %s\nURL: %s\n", rec.Title, rec.SourceName, rec.URL)
		if rec.PublishedDate != nil {
			fmt.Fprintf(&sb, "Date: %s\n", rec.PublishedDate.Format("2 January 2006"))
		}
		if rec.Location != "" {
			fmt.Fprintf(&sb, "Location: %s\n", rec.Location)
		}
		sb.WriteString("\n" + rec.Content)
		fmt.Fprintf(&sb, "\n\n---\nTokens: %d", rec.Tokens)
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleListSources(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var sources []models.Source
		if err := c.call(ctx, http.MethodGet, "/api/v1/sources", nil, &sources); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list sources failed: %v", err)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "%d sources:\n\n", len(sources))
		for _, s := range sources {
			last := "never"
			if s.LastScraped != nil {
				last = s.LastScraped.Format(time.RFC3339)
			}
			state := ""
			if !s.Active {
				state = " (inactive)"
			}
			fmt.Fprintf(&sb, "- %s [%s, %s]%s\n  %s\n  last scraped: %s\n", s.ID, s.Name, s.Kind, state, s.URL, last)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleRefresh(c *apiClient, pollEvery time.Duration) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var results []models.RefreshResponse
		status := "completed"

		if id := request.GetString("source_id", ""); id != "" {
			var r models.RefreshResponse
			if err := c.call(ctx, http.MethodPost, "/api/v1/sources/"+url.PathEscape(id)+"/refresh", nil, &r); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("refresh failed: %v", err)), nil
			}
			results = []models.RefreshResponse{r}
		} else {
			var job models.RefreshJob
			if err := c.call(ctx, http.MethodPost, "/api/v1/refresh", nil, &job); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("refresh request failed: %v", err)), nil
			}
			if job.ID == "" {
				return mcp.NewToolResultError("refresh job creation failed"), nil
			}
			done, err := c.pollRefresh(ctx, job.ID, pollEvery)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("polling refresh job failed: %v", err)), nil
			}
			results, status = done.Results, done.Status
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Refresh %s (%d sources)\n\n", status, len(results))
		for _, r := range results {
			if r.Error != "" {
				fmt.Fprintf(&sb, "- %s: FAILED: %s\n", r.SourceID, r.Error)
				continue
			}
			fmt.Fprintf(&sb, "- %s: %d processed, %d added, %d updated, %d changed\n",
				r.SourceID, r.Processed, r.Added, r.Updated, r.Changed)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}
