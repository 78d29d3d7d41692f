// Package middleware (rbac.go) implements scope-based authorization middleware.
//
// Scopes are derived from the token's role claim at request time (auth.ScopesForRole),
// so changing what a role may do never requires reissuing tokens.

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aitool-portal/aitool-portal/internal/auth"
)

// RequireScope checks if authenticated user has the required scope
func RequireScope(scope auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		scopesVal, exists := c.Get(ScopesKey)
		if !exists {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Insufficient permissions",
			})
			return
		}

		userScopes, ok := scopesVal.([]string)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Invalid scopes format",
			})
			return
		}

		if !auth.HasScope(userScopes, scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Missing required scope",
				"details": "Required scope: " + string(scope),
			})
			return
		}

		c.Next()
	}
}
