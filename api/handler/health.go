package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/uniassist/embedding"
	"github.com/use-agent/uniassist/models"
	"github.com/use-agent/uniassist/store"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Status degrades when the store or the index cannot be read.
func Health(st *store.Store, ix *embedding.Index, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"

		sources, err := st.ListSources(c.Request.Context(), false)
		if err != nil {
			status = "degraded"
		}
		entries, err := ix.Len()
		if err != nil {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:       status,
			Uptime:       time.Since(startTime).Round(time.Second).String(),
			IndexEntries: entries,
			Sources:      len(sources),
			Version:      Version,
		})
	}
}
