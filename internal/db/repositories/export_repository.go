// export_repository.go implements ExportRepository, the catalogue of CSV exports persisted
// to object storage.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aitool-portal/aitool-portal/internal/db/models"
)

const exportArtifactColumns = `id, filename, content_type, storage_backend, storage_path, size_bytes, checksum, row_count, requested_by, created_at`

// ExportRepository handles export artifact database operations
type ExportRepository struct {
	db *sqlx.DB
}

// NewExportRepository creates a new ExportRepository
func NewExportRepository(db *sqlx.DB) *ExportRepository {
	return &ExportRepository{db: db}
}

// CreateExportArtifact inserts a catalogue row
func (r *ExportRepository) CreateExportArtifact(ctx context.Context, a *models.ExportArtifact) error {
	query := `
		INSERT INTO export_artifacts (` + exportArtifactColumns + `)
		VALUES (:id, :filename, :content_type, :storage_backend, :storage_path, :size_bytes, :checksum, :row_count, :requested_by, :created_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
		return fmt.Errorf("failed to create export artifact: %w", err)
	}
	return nil
}

// GetExportArtifact retrieves an artifact by ID; nil, nil when absent
func (r *ExportRepository) GetExportArtifact(ctx context.Context, id uuid.UUID) (*models.ExportArtifact, error) {
	var a models.ExportArtifact
	err := r.db.GetContext(ctx, &a, `SELECT `+exportArtifactColumns+` FROM export_artifacts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get export artifact: %w", err)
	}
	return &a, nil
}

// ListExportArtifacts returns one page of artifacts, newest first, plus the total count
func (r *ExportRepository) ListExportArtifacts(ctx context.Context, limit, offset int) ([]*models.ExportArtifact, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM export_artifacts`); err != nil {
		return nil, 0, fmt.Errorf("failed to count export artifacts: %w", err)
	}

	artifacts := make([]*models.ExportArtifact, 0)
	err := r.db.SelectContext(ctx, &artifacts,
		`SELECT `+exportArtifactColumns+` FROM export_artifacts ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list export artifacts: %w", err)
	}
	return artifacts, total, nil
}
