package models

// Response is the common envelope for API replies.
type Response struct {
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// RetrieveRequest is the payload for POST /api/v1/retrieve.
type RetrieveRequest struct {
	// Query is the free-text question to match against indexed content.
	Query string `json:"query" binding:"required"`

	// K is the number of hits to return. Default: 3. Max: 50.
	K int `json:"k,omitempty" binding:"omitempty,min=1,max=50"`

	// Kind optionally restricts hits to "news" or "event".
	Kind string `json:"content_kind,omitempty" binding:"omitempty,oneof=news event"`
}

// Defaults applies default values to unset fields.
func (r *RetrieveRequest) Defaults() {
	if r.K == 0 {
		r.K = 3
	}
}

// ChatRequest is the payload for POST /api/v1/chat.
type ChatRequest struct {
	Message string `json:"message" binding:"required"`

	// Kind optionally restricts the grounding content to "news" or "event".
	Kind string `json:"content_kind,omitempty" binding:"omitempty,oneof=news event"`
}

// ChatSource is a piece of content an answer was grounded on.
type ChatSource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ChatResponse carries the generated answer plus the content it was grounded on.
type ChatResponse struct {
	Answer   string       `json:"answer"`
	Sources  []ChatSource `json:"sources"`
	Model    string       `json:"model,omitempty"`
	OffTopic bool         `json:"off_topic,omitempty"`
}

// RefreshResponse summarises one source refresh.
type RefreshResponse struct {
	SourceID  string `json:"source_id"`
	LogID     string `json:"log_id,omitempty"`
	Processed int    `json:"items_processed"`
	Added     int    `json:"items_added"`
	Updated   int    `json:"items_updated"`
	Changed   int    `json:"items_changed"`
	Error     string `json:"error,omitempty"`
}

// RefreshJob tracks a background refresh of every active source.
type RefreshJob struct {
	ID        string            `json:"id"`
	Status    string            `json:"status"` // "processing", "completed", "partial", "failed"
	Results   []RefreshResponse `json:"results,omitempty"`
	CreatedAt int64             `json:"created_at"`
}

// RebuildResponse is the response for POST /api/v1/index/rebuild.
type RebuildResponse struct {
	Indexed int `json:"indexed"`
}

// ContentResponse is a stored record rendered in the requested format.
type ContentResponse struct {
	StoredContent
	Format  string `json:"format"`
	Content string `json:"content"`
	Tokens  int    `json:"estimated_tokens"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status       string `json:"status"`
	Uptime       string `json:"uptime"`
	IndexEntries int    `json:"index_entries"`
	Sources      int    `json:"sources"`
	Version      string `json:"version"`
}
