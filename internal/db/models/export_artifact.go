// Package models - export_artifact.go defines the ExportArtifact model, the catalogue row kept
// for every CSV export persisted to object storage.
package models

import (
	"time"

	"github.com/google/uuid"
)

// ExportArtifact records where a stored export lives and how to verify it
type ExportArtifact struct {
	ID             uuid.UUID `json:"id" db:"id"`
	Filename       string    `json:"filename" db:"filename"` // includes the .csv extension
	ContentType    string    `json:"content_type" db:"content_type"`
	StorageBackend string    `json:"storage_backend" db:"storage_backend"` // local, s3, gcs, azure
	StoragePath    string    `json:"storage_path" db:"storage_path"`
	SizeBytes      int64     `json:"size_bytes" db:"size_bytes"`
	Checksum       string    `json:"checksum" db:"checksum"` // hex SHA-256
	RowCount       int       `json:"row_count" db:"row_count"`
	RequestedBy    *string   `json:"requested_by,omitempty" db:"requested_by"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
