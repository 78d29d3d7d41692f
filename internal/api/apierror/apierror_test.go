package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/aitool-portal/aitool-portal/internal/db/models"
	"github.com/aitool-portal/aitool-portal/internal/db/repositories"
	"github.com/aitool-portal/aitool-portal/internal/export"
	"github.com/aitool-portal/aitool-portal/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &models.ValidationError{Fields: []string{"userId"}}, http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("record: %w", &models.ValidationError{Fields: []string{"action"}}), http.StatusBadRequest},
		{"unknown action", fmt.Errorf("%w: %q", models.ErrUnknownAuditAction, "DELETE"), http.StatusBadRequest},
		{"bad filename", export.ErrInvalidFilename, http.StatusBadRequest},
		{"unknown column", export.ErrUnknownColumn, http.StatusBadRequest},
		{"no headers", export.ErrNoHeaders, http.StatusBadRequest},
		{"unserialisable", export.ErrUnserializableValue, http.StatusBadRequest},
		{"duplicate", repositories.ErrDuplicateAuditLog, http.StatusConflict},
		{"not found", storage.ErrNotFound, http.StatusNotFound},
		{"delivery", fmt.Errorf("%w: %w", export.ErrDeliveryFailed, errors.New("s3 down")), http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Status(tt.err); got != tt.want {
				t.Errorf("Status() = %d, want %d", got, tt.want)
			}
		})
	}
}

func respond(err error) (*httptest.ResponseRecorder, map[string]any) {
	r := gin.New()
	r.GET("/", func(c *gin.Context) { Respond(c, err, "Failed to do the thing") })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestRespond_ValidationDetails(t *testing.T) {
	w, body := respond(&models.ValidationError{Fields: []string{"userName", "ipAddress"}})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	details, _ := body["details"].([]any)
	if len(details) != 2 || details[0] != "userName" || details[1] != "ipAddress" {
		t.Errorf("details = %v", body["details"])
	}
}

func TestRespond_ServerErrorHidesMessage(t *testing.T) {
	w, body := respond(errors.New("pq: password authentication failed"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if body["error"] != "Failed to do the thing" {
		t.Errorf("error = %v, want fallback message", body["error"])
	}
}

func TestRespond_ClientErrorEchoesMessage(t *testing.T) {
	_, body := respond(fmt.Errorf("%w: %q", export.ErrUnknownColumn, "password"))
	if body["error"] != `unknown export column: "password"` {
		t.Errorf("error = %v", body["error"])
	}
}
