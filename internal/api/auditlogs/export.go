package auditlogs

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aitool-portal/aitool-portal/internal/api/apierror"
	"github.com/aitool-portal/aitool-portal/internal/api/exports"
	"github.com/aitool-portal/aitool-portal/internal/auth"
	"github.com/aitool-portal/aitool-portal/internal/db/models"
	"github.com/aitool-portal/aitool-portal/internal/export"
	"github.com/aitool-portal/aitool-portal/internal/middleware"
)

const (
	defaultMaxRows = 50000

	// DestinationDownload streams the CSV back as an attachment
	DestinationDownload = "download"
	// DestinationStorage stores the CSV and returns a link to it
	DestinationStorage = "storage"

	// TruncatedHeader is set on downloads that hit the max_rows cap
	TruncatedHeader = "X-Export-Truncated"
)

// DefaultFilename names an export when the caller does not
func DefaultFilename(now time.Time) string {
	return "audit-logs-" + now.UTC().Format("20060102-150405")
}

// exportRequest is everything Export and Print read from the query string
type exportRequest struct {
	logs      []*models.AuditLog
	headers   []export.Header
	truncated bool
}

func (h *Handlers) loadExport(c *gin.Context) (*exportRequest, bool) {
	filters, err := ParseFilters(c)
	if err != nil {
		apierror.BadRequest(c, err.Error())
		return nil, false
	}
	headers, err := export.SelectHeaders(export.AuditLogHeaders, export.ParseColumns(c.Query("columns")))
	if err != nil {
		apierror.Respond(c, err, "Failed to select export columns")
		return nil, false
	}

	maxRows := h.cfg.MaxRows
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	logs, err := h.reader.ExportAuditLogs(c.Request.Context(), filters, maxRows+1)
	if err != nil {
		apierror.Respond(c, err, "Failed to load audit logs")
		return nil, false
	}

	req := &exportRequest{logs: logs, headers: headers}
	if len(logs) > maxRows {
		req.logs = logs[:maxRows]
		req.truncated = true
	}
	return req, true
}

// @Summary      Export audit logs
// @Description  Exports the filtered trail, oldest first, as a UTF-8 CSV with BOM. destination=download returns the file; destination=storage persists it and returns a time-limited link.
// @Tags         Audit
// @Security     Bearer
// @Produce      text/csv
// @Produce      json
// @Param        filename     query  string  false  "Base name; .csv is appended"
// @Param        columns      query  string  false  "Comma-separated column keys, in output order"
// @Param        destination  query  string  false  "download (default) or storage"
// @Success      200  {file}    file  "CSV attachment"
// @Success      201  {object}  map[string]interface{}  "export, download_url, expires_in, truncated"
// @Failure      400  {object}  map[string]interface{}  "Invalid filter, column or filename"
// @Failure      403  {object}  map[string]interface{}  "destination=storage without exports:write"
// @Failure      429  {object}  map[string]interface{}  "Rate limit exceeded"
// @Failure      502  {object}  map[string]interface{}  "Storage delivery failed"
// @Router       /api/v1/audit-logs/export [get]
func (h *Handlers) Export(c *gin.Context) {
	filename := c.Query("filename")
	if filename == "" {
		filename = DefaultFilename(time.Now())
	}
	if err := export.ValidateFilename(filename); err != nil {
		apierror.Respond(c, err, "Invalid filename")
		return
	}

	destination := c.Query("destination")
	if destination == "" {
		destination = h.cfg.DefaultDestination
	}
	switch destination {
	case "", DestinationDownload:
		destination = DestinationDownload
	case DestinationStorage:
		if h.exports == nil {
			apierror.BadRequest(c, "Export storage is not configured")
			return
		}
		if !canStore(c) {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "Missing required scope",
				"details": "Required scope: " + string(auth.ScopeExportsWrite),
			})
			return
		}
	default:
		apierror.BadRequest(c, "destination must be download or storage")
		return
	}

	req, ok := h.loadExport(c)
	if !ok {
		return
	}
	records := export.AuditLogRecords(req.logs)
	ctx := c.Request.Context()

	if destination == DestinationDownload {
		download := export.NewResponseSink(c.Writer)
		sink := export.SinkFunc(func(ctx context.Context, a *export.Artifact) error {
			if req.truncated {
				c.Header(TruncatedHeader, "true")
			}
			return download.Deliver(ctx, a)
		})
		svc := export.NewService(sink, DestinationDownload)
		if _, err := svc.ExportToTable(ctx, records, filename, req.headers); err != nil {
			if c.Writer.Written() {
				slog.ErrorContext(ctx, "audit export failed mid-response", "error", err)
				return
			}
			c.Writer.Header().Del(TruncatedHeader)
			apierror.Respond(c, err, "Failed to export audit logs")
		}
		return
	}

	sink := h.exports.Sink(c.GetString(middleware.UserIDKey))
	svc := export.NewService(sink, DestinationStorage)
	if _, err := svc.ExportToTable(ctx, records, filename, req.headers); err != nil {
		apierror.Respond(c, err, "Failed to store audit export")
		return
	}
	c.JSON(http.StatusCreated, exports.StoredResponse(sink.Result, h.exports.TTL(), req.truncated))
}

// canStore reports whether the caller may create stored exports. Without auth there are
// no scopes in the context and everything is allowed.
func canStore(c *gin.Context) bool {
	v, ok := c.Get(middleware.ScopesKey)
	if !ok {
		return true
	}
	scopes, _ := v.([]string)
	return auth.HasScope(scopes, auth.ScopeExportsWrite)
}

// @Summary      Print audit logs
// @Description  Renders the filtered trail as an HTML table that opens the browser print dialog, for saving as PDF.
// @Tags         Audit
// @Security     Bearer
// @Produce      html
// @Param        title    query  string  false  "Page heading (default Audit log)"
// @Param        columns  query  string  false  "Comma-separated column keys, in output order"
// @Success      200  {string}  string  "HTML page"
// @Router       /api/v1/audit-logs/print [get]
func (h *Handlers) Print(c *gin.Context) {
	req, ok := h.loadExport(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	printer := &export.HTMLPrinter{
		W:       &buf,
		Title:   c.DefaultQuery("title", "Audit log"),
		Headers: req.headers,
		Records: export.AuditLogRecords(req.logs),
	}
	if err := export.NewService(nil, "print").ExportToPrintArtifact(c.Request.Context(), printer); err != nil {
		apierror.Respond(c, err, "Failed to render print view")
		return
	}

	c.Header("Content-Security-Policy", middleware.PrintViewContentSecurityPolicy)
	c.Header("Cache-Control", "no-store")
	if req.truncated {
		c.Header(TruncatedHeader, "true")
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}
