// Package middleware provides the Gin middleware chain for the portal API: request ids,
// metrics, request logging, CORS, security headers, rate limiting, bearer-token auth and
// scope checks.
//
// The order is fixed in api.NewRouter:
//
//	Recovery → RequestID → Metrics → Logger → CORS → SecurityHeaders → JWTAuth (/api/v1) → RequireScope → RateLimit (exports)
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the HTTP header carrying the request identifier
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key holding the request identifier
	RequestIDKey = "request_id"

	maxRequestIDLength = 128
)

// RequestIDMiddleware reuses a well-formed inbound X-Request-ID or generates a UUID, stores
// it under RequestIDKey and echoes it on the response.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.New().String()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}

// validRequestID accepts short printable ASCII ids so log lines cannot be forged
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// RequestID returns the id assigned by RequestIDMiddleware, or ""
func RequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}
