package models

import (
	"errors"
	"strings"
)

// Error codes shared by the API envelope, the CLI and the MCP tools.
const (
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeRateLimited    = "RATE_LIMITED"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeSourceNotFound = "SOURCE_NOT_FOUND"
	ErrCodeInternal       = "INTERNAL_ERROR"

	// Scraping.
	ErrCodeTimeout            = "SCRAPE_TIMEOUT"
	ErrCodeNavigation         = "NAVIGATION_FAILED"
	ErrCodeBrowserUnavailable = "BROWSER_UNAVAILABLE"
	ErrCodeExtraction         = "CONTENT_EXTRACTION_FAILED"

	// Retrieval and chat.
	ErrCodeEmbedding  = "EMBEDDING_FAILED"
	ErrCodeLLMFailure = "LLM_FAILURE"
)

// ErrorDetail is the error object of a failed API response.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeError carries one of the ErrCode values alongside the cause.
type ScrapeError struct {
	Code    string
	Message string
	Err     error
}

// NewScrapeError creates a new ScrapeError. err may be nil.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

func (e *ScrapeError) Error() string {
	parts := []string{e.Code, e.Message}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *ScrapeError) Unwrap() error { return e.Err }

// Is matches another *ScrapeError by code, so errors.Is(err,
// &ScrapeError{Code: ErrCodeNotFound}) works through wrapping.
func (e *ScrapeError) Is(target error) bool {
	t, ok := target.(*ScrapeError)
	return ok && t.Code == e.Code
}

// ToDetail drops the cause, which may hold internal detail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// ErrorCode returns the code of the first ScrapeError in err's chain, or
// ErrCodeInternal when there is none.
func ErrorCode(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}
