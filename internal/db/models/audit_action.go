// Package models - audit_action.go defines the closed set of auditable actions and the
// category each one belongs to.
package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

// ErrUnknownAuditAction is returned when a value outside the AuditAction set is parsed,
// decoded or scanned.
var ErrUnknownAuditAction = errors.New("unknown audit action")

// AuditAction is the kind of event an AuditLog records
type AuditAction string

const (
	// session lifecycle
	AuditActionLogin  AuditAction = "LOGIN"
	AuditActionLogout AuditAction = "LOGOUT"

	// application lifecycle
	AuditActionCreate AuditAction = "CREATE"
	AuditActionSubmit AuditAction = "SUBMIT"
	AuditActionCancel AuditAction = "CANCEL"

	// review outcomes
	AuditActionApprove  AuditAction = "APPROVE"
	AuditActionReject   AuditAction = "REJECT"
	AuditActionFeedback AuditAction = "FEEDBACK"

	// credential lifecycle
	AuditActionIssue      AuditAction = "ISSUE"
	AuditActionRevoke     AuditAction = "REVOKE"
	AuditActionRegenerate AuditAction = "REGENERATE"

	// administration
	AuditActionLicenseUpdate  AuditAction = "LICENSE_UPDATE"
	AuditActionToolCreate     AuditAction = "TOOL_CREATE"
	AuditActionToolUpdate     AuditAction = "TOOL_UPDATE"
	AuditActionUserRoleChange AuditAction = "USER_ROLE_CHANGE"
	AuditActionSettingsChange AuditAction = "SETTINGS_CHANGE"
)

// AuditCategory groups actions for metrics labels and the print view
type AuditCategory string

const (
	AuditCategorySession        AuditCategory = "session"
	AuditCategoryApplication    AuditCategory = "application"
	AuditCategoryReview         AuditCategory = "review"
	AuditCategoryCredential     AuditCategory = "credential"
	AuditCategoryAdministration AuditCategory = "administration"
)

var auditActions = []AuditAction{
	AuditActionLogin,
	AuditActionLogout,
	AuditActionCreate,
	AuditActionSubmit,
	AuditActionCancel,
	AuditActionApprove,
	AuditActionReject,
	AuditActionFeedback,
	AuditActionIssue,
	AuditActionRevoke,
	AuditActionRegenerate,
	AuditActionLicenseUpdate,
	AuditActionToolCreate,
	AuditActionToolUpdate,
	AuditActionUserRoleChange,
	AuditActionSettingsChange,
}

// AuditActions returns every AuditAction in declaration order. The returned slice is a copy.
func AuditActions() []AuditAction {
	out := make([]AuditAction, len(auditActions))
	copy(out, auditActions)
	return out
}

// ParseAuditAction matches s exactly (case-sensitive) against the known actions.
func ParseAuditAction(s string) (AuditAction, error) {
	a := AuditAction(s)
	if !a.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAuditAction, s)
	}
	return a, nil
}

// IsValid reports whether a is a member of the closed set
func (a AuditAction) IsValid() bool {
	return a.Category() != ""
}

func (a AuditAction) String() string {
	return string(a)
}

// Category maps the action to its group. Unknown actions yield "".
func (a AuditAction) Category() AuditCategory {
	switch a {
	case AuditActionLogin, AuditActionLogout:
		return AuditCategorySession
	case AuditActionCreate, AuditActionSubmit, AuditActionCancel:
		return AuditCategoryApplication
	case AuditActionApprove, AuditActionReject, AuditActionFeedback:
		return AuditCategoryReview
	case AuditActionIssue, AuditActionRevoke, AuditActionRegenerate:
		return AuditCategoryCredential
	case AuditActionLicenseUpdate, AuditActionToolCreate, AuditActionToolUpdate,
		AuditActionUserRoleChange, AuditActionSettingsChange:
		return AuditCategoryAdministration
	}
	return ""
}

// MarshalText implements encoding.TextMarshaler
func (a AuditAction) MarshalText() ([]byte, error) {
	if !a.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAuditAction, string(a))
	}
	return []byte(a), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. JSON request bodies carrying an
// unknown action fail to decode.
func (a *AuditAction) UnmarshalText(text []byte) error {
	parsed, err := ParseAuditAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Scan implements sql.Scanner
func (a *AuditAction) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return a.UnmarshalText([]byte(v))
	case []byte:
		return a.UnmarshalText(v)
	case nil:
		return fmt.Errorf("%w: NULL", ErrUnknownAuditAction)
	default:
		return fmt.Errorf("cannot scan %T into AuditAction", src)
	}
}

// Value implements driver.Valuer
func (a AuditAction) Value() (driver.Value, error) {
	if !a.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAuditAction, string(a))
	}
	return string(a), nil
}
