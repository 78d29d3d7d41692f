package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aitool-portal/aitool-portal/internal/auth"
)

// Context keys set by JWTAuthMiddleware
const (
	ClaimsKey     = "claims"
	UserIDKey     = "user_id"
	UserNameKey   = "user_name"
	EmployeeIDKey = "employee_id"
	ScopesKey     = "scopes"
)

// JWTAuthMiddleware requires a valid bearer token and exposes its claims to handlers
func JWTAuthMiddleware(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c, "Missing authorization header")
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			abortUnauthorized(c, "Authorization header must use the Bearer scheme")
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			abortUnauthorized(c, "Authorization token is empty")
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			abortUnauthorized(c, "Invalid or expired token")
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(UserIDKey, claims.UserID)
		c.Set(UserNameKey, claims.UserName)
		c.Set(EmployeeIDKey, claims.EmployeeID)
		c.Set(ScopesKey, auth.ScopesForRole(claims.Role))

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="aitool-portal"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

// Claims returns the verified token claims, if the request was authenticated
func Claims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}
