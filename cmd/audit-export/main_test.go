package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aitool-portal/aitool-portal/internal/db/models"
	"github.com/aitool-portal/aitool-portal/internal/export"
)

func TestBuildFilters(t *testing.T) {
	f, err := buildFilters(options{
		action: "APPROVE",
		user:   "u-1",
		since:  "2026-03-01T00:00:00Z",
		until:  "2026-04-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Action == nil || *f.Action != models.AuditActionApprove {
		t.Errorf("Action = %v, want APPROVE", f.Action)
	}
	if f.UserID == nil || *f.UserID != "u-1" {
		t.Errorf("UserID = %v, want u-1", f.UserID)
	}
	if f.StartDate == nil || !f.StartDate.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("StartDate = %v", f.StartDate)
	}
}

func TestBuildFilters_Errors(t *testing.T) {
	tests := []struct {
		name string
		opts options
	}{
		{"unknown action", options{action: "DELETE"}},
		{"bad since", options{since: "yesterday"}},
		{"bad until", options{until: "2026-13-01"}},
		{"inverted range", options{since: "2026-04-01T00:00:00Z", until: "2026-03-01T00:00:00Z"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := buildFilters(tt.opts); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}

	_, err := buildFilters(options{action: "DELETE"})
	if !errors.Is(err, models.ErrUnknownAuditAction) {
		t.Errorf("err = %v, want ErrUnknownAuditAction", err)
	}
}

func TestExportFilename(t *testing.T) {
	now := time.Date(2026, 3, 9, 14, 5, 0, 0, time.UTC)

	got, err := exportFilename("", now)
	if err != nil || got != "audit-logs-20260309-140500" {
		t.Errorf("stdout name = %q, %v", got, err)
	}

	got, err = exportFilename("/tmp/reports/march.csv", now)
	if err != nil || got != "march" {
		t.Errorf("file name = %q, %v, want march", got, err)
	}

	if _, err := exportFilename("/tmp/..", now); !errors.Is(err, export.ErrInvalidFilename) {
		t.Errorf("err = %v, want ErrInvalidFilename", err)
	}
}

func TestWriteExport_File(t *testing.T) {
	out := filepath.Join(t.TempDir(), "march.csv")
	headers := []export.Header{{Key: "id", Label: "ID"}, {Key: "action", Label: "Action"}}
	records := []export.Record{{"id": "a-1", "action": "APPROVE"}}

	artifact, err := writeExport(context.Background(), out, records, "march", headers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if artifact.Rows != 1 {
		t.Errorf("Rows = %d, want 1", artifact.Rows)
	}
	body, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(body) != string(artifact.Body) {
		t.Errorf("file body differs from artifact body")
	}
	if !strings.Contains(string(body), "a-1,APPROVE") {
		t.Errorf("body = %q, want the record line", body)
	}
}

func TestWriteExport_FailureRemovesFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "broken.csv")
	headers := []export.Header{{Key: "id", Label: "ID"}}
	records := []export.Record{{"id": func() {}}}

	_, err := writeExport(context.Background(), out, records, "broken", headers)
	if !errors.Is(err, export.ErrUnserializableValue) {
		t.Fatalf("err = %v, want ErrUnserializableValue", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Errorf("output file still exists after failed export (stat err %v)", statErr)
	}
}

func TestWriteExport_UncreatableFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "missing-dir", "x.csv")
	_, err := writeExport(context.Background(), out, nil, "x", []export.Header{{Key: "id", Label: "ID"}})
	if err == nil || !strings.Contains(err.Error(), "failed to create output file") {
		t.Errorf("err = %v, want create failure", err)
	}
}
