// Package main dumps audit logs straight from the database to CSV, for operators who
// need an export without going through the HTTP API. It uses the same encoder as the
// /api/v1/audit-logs/export endpoint, so the output is byte-identical for the same rows.
//
//	audit-export -out march.csv -action APPROVE -since 2026-03-01T00:00:00Z -columns id,action
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aitool-portal/aitool-portal/internal/api/auditlogs"
	"github.com/aitool-portal/aitool-portal/internal/config"
	"github.com/aitool-portal/aitool-portal/internal/db"
	"github.com/aitool-portal/aitool-portal/internal/db/models"
	"github.com/aitool-portal/aitool-portal/internal/db/repositories"
	"github.com/aitool-portal/aitool-portal/internal/export"
	"github.com/aitool-portal/aitool-portal/internal/telemetry"
)

type options struct {
	out     string
	action  string
	user    string
	since   string
	until   string
	columns string
	maxRows int
}

func main() {
	var opts options
	flag.StringVar(&opts.out, "out", "", "output file; stdout when empty")
	flag.StringVar(&opts.action, "action", "", "only export this action, e.g. APPROVE")
	flag.StringVar(&opts.user, "user", "", "only export this user id")
	flag.StringVar(&opts.since, "since", "", "RFC3339 lower bound on created_at")
	flag.StringVar(&opts.until, "until", "", "RFC3339 upper bound on created_at")
	flag.StringVar(&opts.columns, "columns", "", "comma-separated column keys; all when empty")
	flag.IntVar(&opts.maxRows, "max-rows", 0, "row cap; export.max_rows when zero")
	flag.Parse()

	if err := run(context.Background(), opts); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	// stdout may carry the CSV, so logs always go to stderr
	slog.SetDefault(telemetry.NewLogger(os.Stderr, cfg.Logging.Format, cfg.Logging.Level))

	filters, err := buildFilters(opts)
	if err != nil {
		return err
	}
	headers, err := export.SelectHeaders(export.AuditLogHeaders, export.ParseColumns(opts.columns))
	if err != nil {
		return err
	}
	filename, err := exportFilename(opts.out, time.Now())
	if err != nil {
		return err
	}

	maxRows := opts.maxRows
	if maxRows <= 0 {
		maxRows = cfg.Export.MaxRows
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 1, 1)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	logs, err := repositories.NewAuditRepository(database).ExportAuditLogs(ctx, filters, maxRows)
	if err != nil {
		return err
	}

	artifact, err := writeExport(ctx, opts.out, export.AuditLogRecords(logs), filename, headers)
	if err != nil {
		return err
	}
	if len(logs) == maxRows {
		slog.Warn("export reached the row cap; narrow the filters to see older rows", "max_rows", maxRows)
	}
	slog.Info("export written", "rows", artifact.Rows, "checksum", artifact.Checksum)
	return nil
}

// writeExport encodes records to out, or stdout when out is empty. A failed export
// leaves no partial file behind.
func writeExport(ctx context.Context, out string, records []export.Record, filename string, headers []export.Header) (*export.Artifact, error) {
	if out == "" {
		return export.NewService(&export.WriterSink{W: os.Stdout}, "cli").ExportToTable(ctx, records, filename, headers)
	}

	path := filepath.Clean(out)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	artifact, err := export.NewService(&export.WriterSink{W: f}, "cli").ExportToTable(ctx, records, filename, headers)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close output file: %w", closeErr)
	}
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			slog.Warn("failed to remove partial export", "path", path, "error", rmErr)
		}
		return nil, err
	}
	return artifact, nil
}

func buildFilters(opts options) (repositories.AuditFilters, error) {
	var f repositories.AuditFilters
	if opts.action != "" {
		action, err := models.ParseAuditAction(opts.action)
		if err != nil {
			return f, err
		}
		f.Action = &action
	}
	if opts.user != "" {
		f.UserID = &opts.user
	}
	if opts.since != "" {
		t, err := time.Parse(time.RFC3339, opts.since)
		if err != nil {
			return f, fmt.Errorf("invalid -since: %w", err)
		}
		f.StartDate = &t
	}
	if opts.until != "" {
		t, err := time.Parse(time.RFC3339, opts.until)
		if err != nil {
			return f, fmt.Errorf("invalid -until: %w", err)
		}
		f.EndDate = &t
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return f, fmt.Errorf("-until is before -since")
	}
	return f, nil
}

// exportFilename derives the artifact base name from -out, or a timestamped default
// when writing to stdout
func exportFilename(out string, now time.Time) (string, error) {
	if out == "" {
		return auditlogs.DefaultFilename(now), nil
	}
	base := strings.TrimSuffix(filepath.Base(out), ".csv")
	if err := export.ValidateFilename(base); err != nil {
		return "", err
	}
	return base, nil
}
