// Package auth - scopes.go defines the permission scopes checked on the /api/v1 routes and
// maps the portal role carried in the token to them.
package auth

import "fmt"

// Scope represents a permission/scope type
type Scope string

const (
	// Audit trail scopes
	ScopeAuditRead  Scope = "audit:read"  // Browse, export and print audit logs
	ScopeAuditWrite Scope = "audit:write" // Record audit events

	// Stored export scopes
	ScopeExportsRead  Scope = "exports:read"  // List and download stored exports
	ScopeExportsWrite Scope = "exports:write" // Create generic exports

	// Admin scope (wildcard - all permissions)
	ScopeAdmin Scope = "admin"
)

// Portal roles understood by this service. Any other role, including none, gets no scopes.
const (
	RoleAdmin    = "admin"
	RoleAuditor  = "auditor"
	RoleReviewer = "reviewer"
	RoleService  = "service"
)

// roleScopes is resolved at request time so a token never has to carry scopes
var roleScopes = map[string][]Scope{
	RoleAdmin:    {ScopeAdmin},
	RoleAuditor:  {ScopeAuditRead, ScopeExportsWrite},
	RoleReviewer: {ScopeAuditRead},
	RoleService:  {ScopeAuditWrite},
}

// AllScopes returns all valid scopes
func AllScopes() []Scope {
	return []Scope{
		ScopeAuditRead,
		ScopeAuditWrite,
		ScopeExportsRead,
		ScopeExportsWrite,
		ScopeAdmin,
	}
}

// ValidateScopes checks if all provided scopes are valid
func ValidateScopes(scopes []string) error {
	valid := make(map[string]bool, len(AllScopes()))
	for _, s := range AllScopes() {
		valid[string(s)] = true
	}
	for _, scope := range scopes {
		if !valid[scope] {
			return fmt.Errorf("invalid scope: %s", scope)
		}
	}
	return nil
}

// ScopesForRole returns the scopes granted to role. The result is a fresh slice.
func ScopesForRole(role string) []string {
	granted := roleScopes[role]
	scopes := make([]string, 0, len(granted))
	for _, s := range granted {
		scopes = append(scopes, string(s))
	}
	return scopes
}

// HasScope checks if a user has a required scope
// Supports wildcard admin scope
func HasScope(userScopes []string, required Scope) bool {
	for _, scope := range userScopes {
		if scope == string(required) || scope == string(ScopeAdmin) {
			return true
		}
		// write implies read within the same resource
		if required == ScopeExportsRead && scope == string(ScopeExportsWrite) {
			return true
		}
	}
	return false
}
