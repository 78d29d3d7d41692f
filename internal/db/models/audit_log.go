// Package models - audit_log.go defines the AuditLog model: one immutable record per audited
// event, with the acting principal captured as it was at event time.
package models

import (
	"errors"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidAuditLog is the sentinel every *ValidationError unwraps to
var ErrInvalidAuditLog = errors.New("invalid audit log")

// AuditLog represents one audited event. Rows are append-only: nothing in the code base
// updates or deletes them, and the audit_logs_append_only trigger rejects it in the database.
type AuditLog struct {
	ID         string      `json:"id" db:"id"`
	UserID     string      `json:"userId" db:"user_id"`         // denormalised, not a live reference
	UserName   string      `json:"userName" db:"user_name"`     // name at event time
	EmployeeID string      `json:"employeeId" db:"employee_id"` // HR employee number
	Action     AuditAction `json:"action" db:"action"`
	Target     string      `json:"target" db:"target"`     // entity type, e.g. "application", "tool"
	TargetID   string      `json:"targetId" db:"target_id"` // identifier of the entity acted on
	Details    string      `json:"details" db:"details"`
	IPAddress  string      `json:"ipAddress" db:"ip_address"`
	CreatedAt  time.Time   `json:"createdAt" db:"created_at"`
}

// AuditLogInput carries everything a producer must supply to record an event.
// The id is the only value assigned for the caller.
type AuditLogInput struct {
	UserID     string      `json:"userId"`
	UserName   string      `json:"userName"`
	EmployeeID string      `json:"employeeId"`
	Action     AuditAction `json:"action"`
	Target     string      `json:"target"`
	TargetID   string      `json:"targetId"`
	Details    string      `json:"details"`
	IPAddress  string      `json:"ipAddress"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// ValidationError lists every field of an AuditLog that is missing or malformed
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return ErrInvalidAuditLog.Error() + ": missing or invalid fields: " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidAuditLog
}

// NewAuditLog assigns a fresh id, normalises the IP address to its canonical text form
// and validates the result. No other field is defaulted.
func NewAuditLog(in AuditLogInput) (*AuditLog, error) {
	log := &AuditLog{
		ID:         uuid.New().String(),
		UserID:     in.UserID,
		UserName:   in.UserName,
		EmployeeID: in.EmployeeID,
		Action:     in.Action,
		Target:     in.Target,
		TargetID:   in.TargetID,
		Details:    in.Details,
		IPAddress:  in.IPAddress,
		CreatedAt:  in.CreatedAt,
	}
	if addr, err := netip.ParseAddr(strings.TrimSpace(in.IPAddress)); err == nil {
		log.IPAddress = addr.String()
	}
	if err := log.Validate(); err != nil {
		return nil, err
	}
	return log, nil
}

// Validate checks field presence, action membership, the IP address and the timestamp.
// All problems are reported together.
func (l *AuditLog) Validate() error {
	var bad []string
	if _, err := uuid.Parse(l.ID); err != nil {
		bad = append(bad, "id")
	}
	required := []struct {
		name  string
		value string
	}{
		{"userId", l.UserID},
		{"userName", l.UserName},
		{"employeeId", l.EmployeeID},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			bad = append(bad, f.name)
		}
	}
	if !l.Action.IsValid() {
		bad = append(bad, "action")
	}
	required = []struct {
		name  string
		value string
	}{
		{"target", l.Target},
		{"targetId", l.TargetID},
		{"details", l.Details},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			bad = append(bad, f.name)
		}
	}
	if _, err := netip.ParseAddr(l.IPAddress); err != nil {
		bad = append(bad, "ipAddress")
	}
	if l.CreatedAt.IsZero() {
		bad = append(bad, "createdAt")
	}
	if len(bad) > 0 {
		return &ValidationError{Fields: bad}
	}
	return nil
}

// Fields returns the record keyed by its JSON field names, the shape the export
// service projects through headers.
func (l *AuditLog) Fields() map[string]any {
	return map[string]any{
		"id":         l.ID,
		"userId":     l.UserID,
		"userName":   l.UserName,
		"employeeId": l.EmployeeID,
		"action":     l.Action,
		"target":     l.Target,
		"targetId":   l.TargetID,
		"details":    l.Details,
		"ipAddress":  l.IPAddress,
		"createdAt":  l.CreatedAt,
	}
}
