package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aitool-portal/aitool-portal/internal/auth"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newAuthRouter(t *testing.T) (*gin.Engine, *auth.Verifier) {
	t.Helper()
	v, err := auth.NewVerifier(testSecret, "aitool-portal")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	r := gin.New()
	r.Use(JWTAuthMiddleware(v))
	r.GET("/me", func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, "%s|%s|%s|%s",
			c.GetString(UserIDKey), c.GetString(UserNameKey), c.GetString(EmployeeIDKey), claims.Role)
	})
	return r, v
}

func authRequest(header string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	return req
}

func TestJWTAuthMiddleware_ValidToken(t *testing.T) {
	r, v := newAuthRouter(t)
	token, err := v.Sign(auth.Claims{UserID: "u-1", UserName: "Kim", EmployeeID: "E-1", Role: "admin"}, time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	for _, scheme := range []string{"Bearer ", "bearer "} {
		w := serveRequest(r, authRequest(scheme+token))
		if w.Code != http.StatusOK {
			t.Fatalf("%q: status = %d, body %s", scheme, w.Code, w.Body.String())
		}
		if got := w.Body.String(); got != "u-1|Kim|E-1|admin" {
			t.Errorf("context values = %q", got)
		}
	}
}

func TestJWTAuthMiddleware_Rejects(t *testing.T) {
	r, _ := newAuthRouter(t)

	other, _ := auth.NewVerifier(strings.Repeat("x", auth.MinSecretLength), "aitool-portal")
	forged, _ := other.Sign(auth.Claims{UserID: "u-1"}, time.Minute)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"basic scheme", "Basic dXNlcjpwYXNz"},
		{"no token", "Bearer"},
		{"blank token", "Bearer   "},
		{"garbage", "Bearer not.a.jwt"},
		{"wrong secret", "Bearer " + forged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveRequest(r, authRequest(tt.header))
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
			if got := w.Header().Get("WWW-Authenticate"); !strings.HasPrefix(got, "Bearer") {
				t.Errorf("WWW-Authenticate = %q", got)
			}
		})
	}
}

func TestClaims_Unauthenticated(t *testing.T) {
	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		if _, ok := Claims(c); ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})
	if w := serve(r, http.MethodGet, "/"); w.Code != http.StatusOK {
		t.Errorf("Claims reported ok without authentication")
	}
}
