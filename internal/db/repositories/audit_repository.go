// audit_repository.go implements AuditRepository: insert-only writes and filtered reads of
// the audit trail. There are deliberately no update or delete methods.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/aitool-portal/aitool-portal/internal/db/models"
)

// ErrDuplicateAuditLog is returned when an audit log id already exists
var ErrDuplicateAuditLog = errors.New("audit log already exists")

const auditColumns = `id, user_id, user_name, employee_id, action, target, target_id, details, ip_address, created_at`

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilters narrows list and export queries. Nil fields are ignored.
type AuditFilters struct {
	UserID     *string
	EmployeeID *string
	Action     *models.AuditAction
	Target     *string
	TargetID   *string
	StartDate  *time.Time
	EndDate    *time.Time
}

// where renders the filters as a WHERE clause with positional parameters
func (f AuditFilters) where() (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.UserID != nil {
		add("user_id = $%d", *f.UserID)
	}
	if f.EmployeeID != nil {
		add("employee_id = $%d", *f.EmployeeID)
	}
	if f.Action != nil {
		add("action = $%d", string(*f.Action))
	}
	if f.Target != nil {
		add("target = $%d", *f.Target)
	}
	if f.TargetID != nil {
		add("target_id = $%d", *f.TargetID)
	}
	if f.StartDate != nil {
		add("created_at >= $%d", *f.StartDate)
	}
	if f.EndDate != nil {
		add("created_at <= $%d", *f.EndDate)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// CreateAuditLog inserts a validated audit log. The row is never touched again.
func (r *AuditRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if err := log.Validate(); err != nil {
		return err
	}

	query := `INSERT INTO audit_logs (` + auditColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.UserID,
		log.UserName,
		log.EmployeeID,
		log.Action,
		log.Target,
		log.TargetID,
		log.Details,
		log.IPAddress,
		log.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicateAuditLog, log.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// ListAuditLogs returns one page of audit logs, newest first, plus the filtered total
func (r *AuditRepository) ListAuditLogs(ctx context.Context, filters AuditFilters, limit, offset int) ([]*models.AuditLog, int, error) {
	where, args := filters.where()

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM audit_logs%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		auditColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	logs, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// ExportAuditLogs returns up to maxRows matching logs oldest first, the order a CSV reader expects
func (r *AuditRepository) ExportAuditLogs(ctx context.Context, filters AuditFilters, maxRows int) ([]*models.AuditLog, error) {
	where, args := filters.where()
	query := fmt.Sprintf(`SELECT %s FROM audit_logs%s ORDER BY created_at ASC, id LIMIT $%d`,
		auditColumns, where, len(args)+1)
	args = append(args, maxRows)
	return r.query(ctx, query, args...)
}

// GetAuditLog retrieves a single audit log; nil, nil when it does not exist
func (r *AuditRepository) GetAuditLog(ctx context.Context, id string) (*models.AuditLog, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+auditColumns+` FROM audit_logs WHERE id = $1`, id)
	log, err := scanAuditLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit log: %w", err)
	}
	return log, nil
}

func (r *AuditRepository) query(ctx context.Context, query string, args ...any) ([]*models.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.AuditLog, 0)
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuditLog(row rowScanner) (*models.AuditLog, error) {
	log := &models.AuditLog{}
	err := row.Scan(
		&log.ID,
		&log.UserID,
		&log.UserName,
		&log.EmployeeID,
		&log.Action,
		&log.Target,
		&log.TargetID,
		&log.Details,
		&log.IPAddress,
		&log.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return log, nil
}
