package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-jwt-secret-that-is-32-chars-!"

func newTestVerifier(t *testing.T, issuer string) *Verifier {
	t.Helper()
	v, err := NewVerifier(testSecret, issuer)
	if err != nil {
		t.Fatalf("NewVerifier() error: %v", err)
	}
	return v
}

func TestNewVerifier_WeakSecret(t *testing.T) {
	if _, err := NewVerifier("short", ""); !errors.Is(err, ErrWeakSecret) {
		t.Errorf("NewVerifier() error = %v, want ErrWeakSecret", err)
	}
}

func TestSignAndVerify(t *testing.T) {
	v := newTestVerifier(t, "aitool-portal")

	token, err := v.Sign(Claims{UserID: "user-123", UserName: "Han Seojun", EmployeeID: "E-77", Role: "admin"}, time.Hour)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	claims, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if claims.UserID != "user-123" || claims.UserName != "Han Seojun" || claims.EmployeeID != "E-77" || claims.Role != "admin" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.Subject != "user-123" || claims.Issuer != "aitool-portal" {
		t.Errorf("sub/iss = %q/%q", claims.Subject, claims.Issuer)
	}
}

func TestVerify_Rejects(t *testing.T) {
	v := newTestVerifier(t, "aitool-portal")
	other, _ := NewVerifier("another-secret-that-is-32-chars-long", "aitool-portal")
	wrongIssuer := newTestVerifier(t, "someone-else")

	valid := func(signer *Verifier) string {
		tok, err := signer.Sign(Claims{UserID: "u1"}, time.Hour)
		if err != nil {
			t.Fatalf("Sign: %v", err)
		}
		return tok
	}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "aitool-portal",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	expiredTok, _ := expired.SignedString([]byte(testSecret))

	noExpiry := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:           "u1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "aitool-portal"},
	})
	noExpiryTok, _ := noExpiry.SignedString([]byte(testSecret))

	hs512 := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "aitool-portal",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	hs512Tok, _ := hs512.SignedString([]byte(testSecret))

	noUser, _ := v.Sign(Claims{UserName: "nobody"}, time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.jwt"},
		{"empty", ""},
		{"wrong secret", valid(other)},
		{"wrong issuer", valid(wrongIssuer)},
		{"expired", expiredTok},
		{"no expiry", noExpiryTok},
		{"other algorithm", hs512Tok},
		{"missing user id", noUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Verify(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestVerify_NoIssuerConfigured(t *testing.T) {
	v := newTestVerifier(t, "")
	signer := newTestVerifier(t, "anyone")

	tok, err := signer.Sign(Claims{UserID: "u1"}, time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := v.Verify(tok); err != nil {
		t.Errorf("Verify() error = %v, want nil when no issuer is enforced", err)
	}
}
