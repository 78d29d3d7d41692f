// Package auth verifies the bearer tokens the portal's identity service issues. This backend
// never logs anyone in; it only checks HS256 signatures, expiry and issuer, and exposes the
// acting user's identity to handlers.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the shortest HMAC secret accepted
const MinSecretLength = 32

var (
	// ErrInvalidToken is returned for any token that fails verification
	ErrInvalidToken = errors.New("invalid token")
	// ErrWeakSecret is returned by NewVerifier for short secrets
	ErrWeakSecret = fmt.Errorf("jwt secret must be at least %d characters", MinSecretLength)
)

// Claims represents the JWT claims structure
type Claims struct {
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name"`
	EmployeeID string `json:"employee_id"`
	Role       string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens against one shared secret
type Verifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewVerifier returns a verifier for secret. A non-empty issuer must match the iss claim.
func NewVerifier(secret, issuer string) (*Verifier, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	return &Verifier{secret: []byte(secret), issuer: issuer, parser: jwt.NewParser(opts...)}, nil
}

// Verify parses and validates a token and returns its claims
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user_id claim", ErrInvalidToken)
	}
	return claims, nil
}

// Sign mints a token for claims valid for ttl. The portal's identity service owns real
// issuance; this exists for the CLI and tests.
func (v *Verifier) Sign(claims Claims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if claims.Issuer == "" {
		claims.Issuer = v.issuer
	}
	if claims.Subject == "" {
		claims.Subject = claims.UserID
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
