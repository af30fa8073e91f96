package models

import "strings"

// Roles carried in the JWT role claim.
const (
	RoleParticipant = "participant"
	RoleJudge       = "judge"
	RoleAdmin       = "admin"
)

// IsPrivilegedRole reports whether the role may see full analysis results and run batches.
func IsPrivilegedRole(role string) bool {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case RoleJudge, RoleAdmin:
		return true
	default:
		return false
	}
}
