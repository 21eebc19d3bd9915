package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/uniassist/models"
	"github.com/use-agent/uniassist/store"
)

// respondOK writes a successful envelope.
func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, models.Response{Success: true, Data: data})
}

// respondError writes err as a failed envelope. Store misses become
// NOT_FOUND and errors without a code become INTERNAL_ERROR.
func respondError(c *gin.Context, err error) {
	var scrapeErr *models.ScrapeError
	switch {
	case errors.As(err, &scrapeErr):
	case errors.Is(err, store.ErrNotFound):
		scrapeErr = models.NewScrapeError(models.ErrCodeNotFound, "not found", err)
	default:
		scrapeErr = models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
	}

	c.JSON(mapErrorToStatus(scrapeErr), models.Response{
		Success: false,
		Error:   scrapeErr.ToDetail(),
	})
}

// badRequest writes a 400 with an INVALID_INPUT error.
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, models.Response{
		Success: false,
		Error: &models.ErrorDetail{
			Code:    models.ErrCodeInvalidInput,
			Message: msg,
		},
	})
}

// statusByCode maps error codes to HTTP statuses. Unlisted codes are 500.
var statusByCode = map[string]int{
	models.ErrCodeInvalidInput:       http.StatusBadRequest,
	models.ErrCodeUnauthorized:       http.StatusUnauthorized,
	models.ErrCodeNotFound:           http.StatusNotFound,
	models.ErrCodeSourceNotFound:     http.StatusNotFound,
	models.ErrCodeRateLimited:        http.StatusTooManyRequests,
	models.ErrCodeNavigation:         http.StatusBadGateway,
	models.ErrCodeEmbedding:          http.StatusBadGateway,
	models.ErrCodeLLMFailure:         http.StatusBadGateway,
	models.ErrCodeBrowserUnavailable: http.StatusServiceUnavailable,
	models.ErrCodeTimeout:            http.StatusGatewayTimeout,
}

func mapErrorToStatus(e *models.ScrapeError) int {
	if status, ok := statusByCode[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
