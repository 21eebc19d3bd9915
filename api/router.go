package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/uniassist/api/handler"
	"github.com/use-agent/uniassist/api/middleware"
	"github.com/use-agent/uniassist/cleaner"
	"github.com/use-agent/uniassist/config"
	"github.com/use-agent/uniassist/embedding"
	"github.com/use-agent/uniassist/llm"
	"github.com/use-agent/uniassist/pipeline"
	"github.com/use-agent/uniassist/store"
)

// Deps are the components the HTTP API serves.
type Deps struct {
	Store     *store.Store
	Pipeline  *pipeline.Pipeline
	Index     *embedding.Index
	Assistant *llm.Assistant
	Renderer  *cleaner.Renderer

	// ChatModel is reported in chat responses.
	ChatModel string
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(d Deps, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health is public.
	v1.GET("/health", handler.Health(d.Store, d.Index, startTime))

	// Everything else needs a key and is rate limited.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Sources and refresh
	protected.GET("/sources", handler.ListSources(d.Store))
	protected.POST("/sources/:id/refresh", handler.RefreshSource(d.Pipeline))
	protected.POST("/refresh", handler.PostRefresh(d.Pipeline))
	protected.GET("/refresh/:id", handler.GetRefresh())
	protected.GET("/logs", handler.ListLogs(d.Store))

	// Content
	protected.GET("/contents", handler.ListContents(d.Store))
	protected.GET("/contents/:id", handler.GetContent(d.Store, d.Renderer))

	// Retrieval and chat
	protected.POST("/index/rebuild", handler.RebuildIndex(d.Pipeline))
	protected.POST("/retrieve", handler.Retrieve(d.Index))
	protected.POST("/chat", handler.Chat(d.Assistant, d.ChatModel))

	return r
}
