package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/quotecompare/backend/internal/domain"
)

// Error kinds returned in the "kind" field of every error payload
const (
	KindExtractionFailed = "extraction_failed"
	KindNotFound         = "not_found"
	KindValidationFailed = "validation_failed"
	KindRateLimited      = "rate_limited"
	KindInternal         = "internal_error"
)

// classify maps a domain error to its HTTP status and kind
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnreadableDocument):
		return http.StatusUnprocessableEntity, KindExtractionFailed
	case errors.Is(err, domain.ErrExtractionFailed):
		return http.StatusBadGateway, KindExtractionFailed
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, KindNotFound
	case errors.Is(err, domain.ErrValidationFailed):
		return http.StatusBadRequest, KindValidationFailed
	default:
		return http.StatusInternalServerError, KindInternal
	}
}

// respondError writes {"error": message, "kind": kind}. Internal errors are
// logged and replaced by a generic message.
func respondError(c *gin.Context, err error) {
	status, kind := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("request failed")
		message = "internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": message, "kind": kind})
}
