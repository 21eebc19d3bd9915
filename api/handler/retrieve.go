package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/use-agent/uniassist/embedding"
	"github.com/use-agent/uniassist/llm"
	"github.com/use-agent/uniassist/models"
)

// Retrieve returns a handler for POST /api/v1/retrieve.
func Retrieve(ix *embedding.Index) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.RetrieveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		req.Defaults()

		hits, err := ix.Retrieve(c.Request.Context(), req.Query, req.K, models.ContentKind(req.Kind))
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, nonNil(hits))
	}
}

// Chat returns a handler for POST /api/v1/chat.
func Chat(a *llm.Assistant, model string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		ans, err := a.Ask(c.Request.Context(), req.Message, models.ContentKind(req.Kind))
		if err != nil {
			respondError(c, err)
			return
		}

		sources := make([]models.ChatSource, 0, len(ans.Sources))
		for _, s := range ans.Sources {
			sources = append(sources, models.ChatSource{Title: s.Title, URL: s.URL})
		}
		respondOK(c, models.ChatResponse{
			Answer:   ans.Response,
			Sources:  sources,
			Model:    model,
			OffTopic: ans.OffTopic,
		})
	}
}
