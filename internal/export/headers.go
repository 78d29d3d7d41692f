package export

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aitool-portal/aitool-portal/internal/db/models"
)

// ErrUnknownColumn is returned by SelectHeaders for a column key not in the projection
var ErrUnknownColumn = errors.New("unknown export column")

// AuditLogHeaders is the default projection for audit log exports
var AuditLogHeaders = []Header{
	{Key: "id", Label: "ID"},
	{Key: "createdAt", Label: "Timestamp"},
	{Key: "userName", Label: "User"},
	{Key: "employeeId", Label: "Employee ID"},
	{Key: "userId", Label: "User ID"},
	{Key: "action", Label: "Action"},
	{Key: "target", Label: "Target"},
	{Key: "targetId", Label: "Target ID"},
	{Key: "details", Label: "Details"},
	{Key: "ipAddress", Label: "IP Address"},
}

// SelectHeaders picks columns out of available in the order requested. No columns
// selects the whole projection.
func SelectHeaders(available []Header, columns []string) ([]Header, error) {
	if len(columns) == 0 {
		out := make([]Header, len(available))
		copy(out, available)
		return out, nil
	}
	byKey := make(map[string]Header, len(available))
	for _, h := range available {
		byKey[h.Key] = h
	}
	out := make([]Header, 0, len(columns))
	for _, c := range columns {
		h, ok := byKey[c]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, c)
		}
		out = append(out, h)
	}
	return out, nil
}

// ParseColumns splits a comma-separated column list, dropping blanks
func ParseColumns(s string) []string {
	var cols []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}

// AuditLogRecords converts audit logs into export records
func AuditLogRecords(logs []*models.AuditLog) []Record {
	records := make([]Record, len(logs))
	for i, l := range logs {
		records[i] = l.Fields()
	}
	return records
}
