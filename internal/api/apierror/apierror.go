// Package apierror maps domain errors to HTTP responses so every handler reports them the
// same way: a JSON body {"error": "..."} plus "details" for validation failures.
package apierror

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aitool-portal/aitool-portal/internal/db/models"
	"github.com/aitool-portal/aitool-portal/internal/db/repositories"
	"github.com/aitool-portal/aitool-portal/internal/export"
	"github.com/aitool-portal/aitool-portal/internal/middleware"
	"github.com/aitool-portal/aitool-portal/internal/storage"
)

var badRequest = []error{
	models.ErrUnknownAuditAction,
	export.ErrNoHeaders,
	export.ErrInvalidHeader,
	export.ErrUnserializableValue,
	export.ErrInvalidFilename,
	export.ErrUnknownColumn,
}

// Status returns the HTTP status for err
func Status(err error) int {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, repositories.ErrDuplicateAuditLog):
		return http.StatusConflict
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, export.ErrDeliveryFailed):
		return http.StatusBadGateway
	}
	for _, target := range badRequest {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// Respond aborts the request with the status for err. Client errors echo err's message;
// server errors are logged and answered with fallback so internals do not leak.
func Respond(c *gin.Context, err error, fallback string) {
	status := Status(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), fallback,
			"error", err,
			"status", status,
			"request_id", middleware.RequestID(c),
		)
		_ = c.Error(err)
		c.AbortWithStatusJSON(status, gin.H{"error": fallback})
		return
	}

	body := gin.H{"error": err.Error()}
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		body["error"] = "Invalid audit log"
		body["details"] = verr.Fields
	}
	c.AbortWithStatusJSON(status, body)
}

// BadRequest aborts with 400 and msg
func BadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

// NotFound aborts with 404 and msg
func NotFound(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": msg})
}
