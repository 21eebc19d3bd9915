package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/uniassist/cleaner"
	"github.com/use-agent/uniassist/models"
	"github.com/use-agent/uniassist/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ListSources returns a handler for GET /api/v1/sources.
// ?active=true limits the list to active sources.
func ListSources(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sources, err := st.ListSources(c.Request.Context(), c.Query("active") == "true")
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, nonNil(sources))
	}
}

// ListContents returns a handler for GET /api/v1/contents.
//
// Query parameters: kind, source, search, date_from, date_to (YYYY-MM-DD)
// and limit (default 50, max 200).
func ListContents(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := models.ContentFilter{
			SourceID: c.Query("source"),
			Search:   c.Query("search"),
		}
		if k := c.Query("kind"); k != "" {
			kind, err := models.ParseKind(k)
			if err != nil {
				badRequest(c, err.Error())
				return
			}
			f.Kind = kind
		}

		var err error
		if f.DateFrom, err = queryDate(c, "date_from"); err != nil {
			badRequest(c, err.Error())
			return
		}
		if f.DateTo, err = queryDate(c, "date_to"); err != nil {
			badRequest(c, err.Error())
			return
		}
		if f.Limit, err = queryLimit(c); err != nil {
			badRequest(c, err.Error())
			return
		}

		rows, err := st.ListContents(c.Request.Context(), f)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, nonNil(rows))
	}
}

// GetContent returns a handler for GET /api/v1/contents/:id.
//
// ?format=text (default) returns the plain body, markdown converts the
// stored body HTML, html returns the sanitised body HTML. With
// ?citations=true, markdown links become numbered references.
func GetContent(st *store.Store, md *cleaner.Renderer) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			badRequest(c, "content id must be an integer")
			return
		}
		format := c.DefaultQuery("format", "text")

		rec, err := st.GetContent(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}

		var content string
		switch format {
		case "text":
			content = rec.Body
		case "html":
			content = cleaner.Sanitize(rec.BodyHTML)
		case "markdown":
			content, err = md.RecordMarkdown(rec)
			if err != nil {
				respondError(c, models.NewScrapeError(models.ErrCodeExtraction, "markdown conversion failed", err))
				return
			}
			if c.Query("citations") == "true" {
				content = cleaner.ConvertToCitations(content)
			}
		default:
			badRequest(c, "format must be one of text, markdown, html")
			return
		}

		respondOK(c, models.ContentResponse{
			StoredContent: rec,
			Format:        format,
			Content:       content,
			Tokens:        cleaner.EstimateTokens(content),
		})
	}
}

// ListLogs returns a handler for GET /api/v1/logs.
// Query parameters: source and limit (default 50, max 200).
func ListLogs(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := queryLimit(c)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		logs, err := st.ListLogs(c.Request.Context(), c.Query("source"), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, nonNil(logs))
	}
}

func queryDate(c *gin.Context, name string) (*time.Time, error) {
	v := c.Query(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, &paramError{name: name, want: "a YYYY-MM-DD date"}
	}
	return &t, nil
}

func queryLimit(c *gin.Context) (int, error) {
	v := c.Query("limit")
	if v == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, &paramError{name: "limit", want: "a positive integer"}
	}
	return min(n, maxListLimit), nil
}

type paramError struct {
	name string
	want string
}

func (e *paramError) Error() string {
	return e.name + " must be " + e.want
}

// nonNil keeps empty lists as [] in JSON.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
