package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"voucherpos/apperrors"
	"voucherpos/credits"
	"voucherpos/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError writes the HTTP rendering of an engine error.
func respondError(c *gin.Context, err error) {
	var (
		validation   *apperrors.ValidationError
		notFound     *apperrors.NotFoundError
		conflict     *apperrors.ConflictError
		insufficient *apperrors.InsufficientBalanceError
		forbidden    *apperrors.AuthorizationError
		backend      *apperrors.BackendUnavailableError
	)
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": validation.Field})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &insufficient):
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":     err.Error(),
			"required":  insufficient.Required.StringFixed(credits.Scale),
			"available": insufficient.Available.StringFixed(credits.Scale),
		})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.As(err, &backend):
		logger.FromContext(c.Request.Context()).Error("store unavailable", zap.String("operation", backend.Op), zap.Error(backend.Err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Store temporarily unavailable"})
	default:
		logger.FromContext(c.Request.Context()).Error("unhandled error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
