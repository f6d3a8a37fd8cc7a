package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"

	"github.com/ddevcap/rollfeed/engagement"
	"github.com/ddevcap/rollfeed/feed"
	"github.com/ddevcap/rollfeed/store"
)

// respondError maps domain errors to HTTP responses. Idempotency guards are
// 4xx with a distinct code so clients refresh state instead of retrying.
func respondError(c *gin.Context, err error) {
	var verr *feed.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "code": "invalid_" + verr.Field})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "code": "not_found"})
	case errors.Is(err, engagement.ErrAlreadyDone):
		c.JSON(http.StatusBadRequest, gin.H{"error": "already done", "code": "already_done"})
	case errors.Is(err, engagement.ErrNotDone):
		c.JSON(http.StatusBadRequest, gin.H{"error": "not done", "code": "not_done"})
	case errors.Is(err, engagement.ErrAnonymous):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "sign in required", "code": "unauthorized"})
	case errors.Is(err, engagement.ErrInvalidComment):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_body"})
	case errors.Is(err, engagement.ErrUnsupported):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported action", "code": "unsupported"})
	default:
		slog.Error("request failed",
			"request_id", requestid.Get(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "internal"})
	}
}
