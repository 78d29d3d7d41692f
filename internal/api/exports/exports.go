// Package exports implements the generic export endpoints: tabulating caller-supplied
// records, listing stored exports and downloading them again.
package exports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aitool-portal/aitool-portal/internal/api/apierror"
	"github.com/aitool-portal/aitool-portal/internal/config"
	"github.com/aitool-portal/aitool-portal/internal/db/models"
	"github.com/aitool-portal/aitool-portal/internal/export"
	"github.com/aitool-portal/aitool-portal/internal/middleware"
	"github.com/aitool-portal/aitool-portal/internal/services"
	"github.com/aitool-portal/aitool-portal/internal/storage"
)

const (
	maxRequestBytes = 32 << 20
	defaultMaxRows  = 50000
	defaultPerPage  = 20
	maxPerPage      = 100
)

// Catalogue is the read side of the export repository
type Catalogue interface {
	GetExportArtifact(ctx context.Context, id uuid.UUID) (*models.ExportArtifact, error)
	ListExportArtifacts(ctx context.Context, limit, offset int) ([]*models.ExportArtifact, int, error)
}

// Handlers serves /api/v1/exports
type Handlers struct {
	catalogue Catalogue
	store     *services.ExportStore
	cfg       config.ExportConfig
}

// NewHandlers creates the export handlers
func NewHandlers(catalogue Catalogue, store *services.ExportStore, cfg config.ExportConfig) *Handlers {
	return &Handlers{catalogue: catalogue, store: store, cfg: cfg}
}

// DownloadPath is the API route that serves a stored export
func DownloadPath(id uuid.UUID) string {
	return "/api/v1/exports/" + id.String() + "/download"
}

// StoredResponse is the 201 body for an export delivered to storage. Backends without
// signed URLs get the download route instead.
func StoredResponse(res *services.StoredExport, ttl time.Duration, truncated bool) gin.H {
	body := gin.H{
		"export":       res.Artifact,
		"download_url": res.URL,
		"truncated":    truncated,
	}
	if res.URL == "" {
		body["download_url"] = DownloadPath(res.Artifact.ID)
	} else {
		body["expires_in"] = int(ttl.Seconds())
	}
	return body
}

// CreateRequest is the body of POST /api/v1/exports
type CreateRequest struct {
	Filename    string          `json:"filename"`
	Headers     []export.Header `json:"headers"`
	Records     []export.Record `json:"records"`
	Destination string          `json:"destination"`
}

// @Summary      Export records as CSV
// @Description  Tabulates the supplied records under the supplied headers. Values are rendered as text; nested objects are rejected.
// @Tags         Exports
// @Security     Bearer
// @Accept       json
// @Produce      text/csv
// @Produce      json
// @Success      200  {file}    file  "CSV attachment (destination=download)"
// @Success      201  {object}  map[string]interface{}  "export, download_url (destination=storage)"
// @Failure      400  {object}  map[string]interface{}  "Invalid headers, records or filename"
// @Failure      502  {object}  map[string]interface{}  "Storage delivery failed"
// @Router       /api/v1/exports [post]
func (h *Handlers) Create(c *gin.Context) {
	req, err := decodeCreateRequest(c.Request.Body)
	if err != nil {
		apierror.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	maxRows := h.cfg.MaxRows
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	if len(req.Records) > maxRows {
		apierror.BadRequest(c, fmt.Sprintf("at most %d records may be exported at once", maxRows))
		return
	}

	destination := req.Destination
	if destination == "" {
		destination = h.cfg.DefaultDestination
	}
	ctx := c.Request.Context()

	switch destination {
	case "", "download":
		svc := export.NewService(export.NewResponseSink(c.Writer), "download")
		if _, err := svc.ExportToTable(ctx, req.Records, req.Filename, req.Headers); err != nil {
			if c.Writer.Written() {
				slog.ErrorContext(ctx, "export failed mid-response", "error", err)
				return
			}
			apierror.Respond(c, err, "Failed to export records")
		}
	case "storage":
		if h.store == nil {
			apierror.BadRequest(c, "Export storage is not configured")
			return
		}
		sink := h.store.Sink(c.GetString(middleware.UserIDKey))
		if _, err := export.NewService(sink, "storage").ExportToTable(ctx, req.Records, req.Filename, req.Headers); err != nil {
			apierror.Respond(c, err, "Failed to store export")
			return
		}
		c.JSON(http.StatusCreated, StoredResponse(sink.Result, h.store.TTL(), false))
	default:
		apierror.BadRequest(c, "destination must be download or storage")
	}
}

// decodeCreateRequest keeps JSON numbers as json.Number so 12345678901234567890 is
// exported exactly rather than via float64
func decodeCreateRequest(body io.Reader) (*CreateRequest, error) {
	dec := json.NewDecoder(io.LimitReader(body, maxRequestBytes))
	dec.UseNumber()
	var req CreateRequest
	if err := dec.Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// List returns stored exports, newest first
// GET /api/v1/exports?page=1&per_page=20
func (h *Handlers) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > maxPerPage {
		perPage = defaultPerPage
	}

	items, total, err := h.catalogue.ListExportArtifacts(c.Request.Context(), perPage, (page-1)*perPage)
	if err != nil {
		apierror.Respond(c, err, "Failed to list exports")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"exports": items,
		"pagination": gin.H{
			"page":     page,
			"per_page": perPage,
			"total":    total,
		},
	})
}

// @Summary      Download stored export
// @Description  Redirects to a time-limited signed URL, or streams the file when the backend cannot sign URLs.
// @Tags         Exports
// @Security     Bearer
// @Param        id  path  string  true  "Export id"
// @Success      200  {file}  file  "CSV (local backend)"
// @Success      302  "Redirect to signed URL"
// @Failure      404  {object}  map[string]interface{}  "Export not found"
// @Router       /api/v1/exports/{id}/download [get]
func (h *Handlers) Download(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apierror.BadRequest(c, "Invalid export id")
		return
	}
	ctx := c.Request.Context()

	artifact, err := h.catalogue.GetExportArtifact(ctx, id)
	if err != nil {
		apierror.Respond(c, err, "Failed to get export")
		return
	}
	if artifact == nil {
		apierror.NotFound(c, "Export not found")
		return
	}

	url, err := h.store.SignedURL(ctx, artifact)
	if err == nil {
		c.Header("Cache-Control", "no-store")
		c.Redirect(http.StatusFound, url)
		return
	}
	if !errors.Is(err, storage.ErrSignedURLUnsupported) {
		apierror.Respond(c, err, "Failed to sign export URL")
		return
	}

	rc, err := h.store.Open(ctx, artifact)
	if err != nil {
		apierror.Respond(c, err, "Failed to open export")
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, artifact.SizeBytes, artifact.ContentType, rc, map[string]string{
		"Content-Disposition": export.ContentDisposition(artifact.Filename),
		"X-Content-Checksum":  artifact.Checksum,
		"Cache-Control":       "no-store",
	})
}
