package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/use-agent/uniassist/models"
	"github.com/use-agent/uniassist/pipeline"
)

// refreshStore holds all in-flight and completed refresh jobs.
var refreshStore sync.Map

// jobMu guards the fields of jobs in refreshStore.
var jobMu sync.Mutex

func init() {
	// Background goroutine to expire refresh jobs older than 1 hour.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			cutoff := time.Now().Add(-1 * time.Hour).Unix()
			refreshStore.Range(func(key, value any) bool {
				job := value.(*models.RefreshJob)
				if job.CreatedAt < cutoff {
					refreshStore.Delete(key)
				}
				return true
			})
		}
	}()
}

// RefreshSource returns a handler for POST /api/v1/sources/:id/refresh.
// The refresh runs synchronously on the request context.
func RefreshSource(p *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := p.RefreshByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, toRefreshResponse(stats))
	}
}

// PostRefresh returns a handler for POST /api/v1/refresh.
// It creates a job and refreshes every active source in the background.
func PostRefresh(p *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		job := &models.RefreshJob{
			ID:        "refresh-" + uuid.NewString(),
			Status:    "processing",
			CreatedAt: time.Now().Unix(),
		}
		refreshStore.Store(job.ID, job)

		go runRefresh(p, job)

		c.JSON(http.StatusAccepted, models.Response{Success: true, Data: snapshot(job)})
	}
}

// GetRefresh returns a handler for GET /api/v1/refresh/:id.
func GetRefresh() gin.HandlerFunc {
	return func(c *gin.Context) {
		val, ok := refreshStore.Load(c.Param("id"))
		if !ok {
			respondError(c, models.NewScrapeError(models.ErrCodeNotFound, "refresh job not found", nil))
			return
		}
		respondOK(c, snapshot(val.(*models.RefreshJob)))
	}
}

// runRefresh refreshes all active sources and records the outcome on job.
func runRefresh(p *pipeline.Pipeline, job *models.RefreshJob) {
	all, err := p.RefreshAll(context.Background())

	results := make([]models.RefreshResponse, len(all))
	failed := 0
	for i, s := range all {
		results[i] = toRefreshResponse(s)
		if s.Error != "" {
			failed++
		}
	}

	status := "completed"
	switch {
	case err != nil && (len(all) == 0 || failed == len(all)):
		status = "failed"
	case err != nil:
		status = "partial"
	}

	jobMu.Lock()
	job.Results = results
	job.Status = status
	jobMu.Unlock()

	slog.Info("refresh job finished",
		"id", job.ID,
		"status", status,
		"sources", len(all),
		"failed", failed,
	)
}

func snapshot(job *models.RefreshJob) models.RefreshJob {
	jobMu.Lock()
	defer jobMu.Unlock()
	return *job
}

func toRefreshResponse(s pipeline.Stats) models.RefreshResponse {
	return models.RefreshResponse{
		SourceID:  s.SourceID,
		LogID:     s.LogID,
		Processed: s.Processed,
		Added:     s.Added,
		Updated:   s.Updated,
		Changed:   s.Changed,
		Error:     s.Error,
	}
}

// RebuildIndex returns a handler for POST /api/v1/index/rebuild.
func RebuildIndex(p *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := p.RebuildIndex(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, models.RebuildResponse{Indexed: n})
	}
}
