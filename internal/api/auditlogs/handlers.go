// Package auditlogs implements the /api/v1/audit-logs and /api/v1/audit-actions handlers:
// recording events, browsing the trail, and exporting it as CSV or a print view.
// There are no update or delete handlers; the trail is append-only.
package auditlogs

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aitool-portal/aitool-portal/internal/api/apierror"
	"github.com/aitool-portal/aitool-portal/internal/config"
	"github.com/aitool-portal/aitool-portal/internal/db/models"
	"github.com/aitool-portal/aitool-portal/internal/db/repositories"
	"github.com/aitool-portal/aitool-portal/internal/services"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// Reader is the read side of the audit repository
type Reader interface {
	ListAuditLogs(ctx context.Context, filters repositories.AuditFilters, limit, offset int) ([]*models.AuditLog, int, error)
	ExportAuditLogs(ctx context.Context, filters repositories.AuditFilters, maxRows int) ([]*models.AuditLog, error)
	GetAuditLog(ctx context.Context, id string) (*models.AuditLog, error)
}

// Recorder records new audit events
type Recorder interface {
	Record(ctx context.Context, in models.AuditLogInput) (*models.AuditLog, error)
}

// Handlers serves the audit log endpoints
type Handlers struct {
	reader   Reader
	recorder Recorder
	exports  *services.ExportStore
	cfg      config.ExportConfig
}

// NewHandlers creates the audit log handlers. exports may be nil, in which case
// destination=storage is rejected.
func NewHandlers(reader Reader, recorder Recorder, exports *services.ExportStore, cfg config.ExportConfig) *Handlers {
	return &Handlers{reader: reader, recorder: recorder, exports: exports, cfg: cfg}
}

type actionInfo struct {
	Action   models.AuditAction   `json:"action"`
	Category models.AuditCategory `json:"category"`
}

// @Summary      List audit actions
// @Description  The closed set of audit actions with their categories, in declaration order.
// @Tags         Audit
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "actions: [{action, category}]"
// @Router       /api/v1/audit-actions [get]
func (h *Handlers) ListActions(c *gin.Context) {
	actions := models.AuditActions()
	out := make([]actionInfo, len(actions))
	for i, a := range actions {
		out[i] = actionInfo{Action: a, Category: a.Category()}
	}
	c.JSON(http.StatusOK, gin.H{"actions": out})
}

// createRequest mirrors models.AuditLogInput. Action is kept as a string so an unknown
// value is reported with the other invalid fields instead of as a decode error.
type createRequest struct {
	UserID     string    `json:"userId"`
	UserName   string    `json:"userName"`
	EmployeeID string    `json:"employeeId"`
	Action     string    `json:"action"`
	Target     string    `json:"target"`
	TargetID   string    `json:"targetId"`
	Details    string    `json:"details"`
	IPAddress  string    `json:"ipAddress"`
	CreatedAt  time.Time `json:"createdAt"`
}

// @Summary      Record audit event
// @Description  Appends one event to the audit trail. Every field except id is required.
// @Tags         Audit
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Success      201  {object}  models.AuditLog
// @Failure      400  {object}  map[string]interface{}  "error, details: invalid fields"
// @Failure      409  {object}  map[string]interface{}  "Duplicate id"
// @Router       /api/v1/audit-logs [post]
func (h *Handlers) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	log, err := h.recorder.Record(c.Request.Context(), models.AuditLogInput{
		UserID:     req.UserID,
		UserName:   req.UserName,
		EmployeeID: req.EmployeeID,
		Action:     models.AuditAction(req.Action),
		Target:     req.Target,
		TargetID:   req.TargetID,
		Details:    req.Details,
		IPAddress:  req.IPAddress,
		CreatedAt:  req.CreatedAt,
	})
	if err != nil {
		apierror.Respond(c, err, "Failed to record audit log")
		return
	}
	c.JSON(http.StatusCreated, log)
}

// @Summary      List audit logs
// @Description  Filtered, paginated audit trail, newest first.
// @Tags         Audit
// @Security     Bearer
// @Produce      json
// @Param        page         query  int     false  "Page number (default 1)"
// @Param        per_page     query  int     false  "Items per page, max 100 (default 20)"
// @Param        user_id      query  string  false  "Filter by user id"
// @Param        employee_id  query  string  false  "Filter by employee id"
// @Param        action       query  string  false  "Filter by action"
// @Param        target       query  string  false  "Filter by target type"
// @Param        target_id    query  string  false  "Filter by target id"
// @Param        start_date   query  string  false  "RFC 3339 lower bound"
// @Param        end_date     query  string  false  "RFC 3339 upper bound"
// @Success      200  {object}  map[string]interface{}  "audit_logs, pagination: {page, per_page, total}"
// @Router       /api/v1/audit-logs [get]
func (h *Handlers) List(c *gin.Context) {
	filters, err := ParseFilters(c)
	if err != nil {
		apierror.BadRequest(c, err.Error())
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > maxPerPage {
		perPage = defaultPerPage
	}

	logs, total, err := h.reader.ListAuditLogs(c.Request.Context(), filters, perPage, (page-1)*perPage)
	if err != nil {
		apierror.Respond(c, err, "Failed to list audit logs")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"audit_logs": logs,
		"pagination": gin.H{
			"page":     page,
			"per_page": perPage,
			"total":    total,
		},
	})
}

// Get returns one audit log
// GET /api/v1/audit-logs/:id
func (h *Handlers) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apierror.NotFound(c, "Audit log not found")
		return
	}

	log, err := h.reader.GetAuditLog(c.Request.Context(), id.String())
	if err != nil {
		apierror.Respond(c, err, "Failed to get audit log")
		return
	}
	if log == nil {
		apierror.NotFound(c, "Audit log not found")
		return
	}
	c.JSON(http.StatusOK, log)
}

// ParseFilters reads the shared list/export query filters. Dates are RFC 3339.
func ParseFilters(c *gin.Context) (repositories.AuditFilters, error) {
	var f repositories.AuditFilters
	optional := func(key string) *string {
		if v := c.Query(key); v != "" {
			return &v
		}
		return nil
	}

	f.UserID = optional("user_id")
	f.EmployeeID = optional("employee_id")
	f.Target = optional("target")
	f.TargetID = optional("target_id")

	if v := c.Query("action"); v != "" {
		a, err := models.ParseAuditAction(v)
		if err != nil {
			return f, err
		}
		f.Action = &a
	}
	for key, dst := range map[string]**time.Time{"start_date": &f.StartDate, "end_date": &f.EndDate} {
		v := c.Query(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("%s must be an RFC 3339 timestamp", key)
		}
		*dst = &t
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return f, fmt.Errorf("end_date is before start_date")
	}
	return f, nil
}
