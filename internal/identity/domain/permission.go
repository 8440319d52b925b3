package domain

// Role is a user's coarse access tier. The effective permission set is
// derived from the role defaults, optionally replaced by a whitelist grant.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
	RoleViewer  Role = "viewer"
)

// Platform permissions. Space-delimited in storage and in token claims.
const (
	PermRecordsRead     = "records:read"
	PermRecordsWrite    = "records:write"
	PermRecordsDelete   = "records:delete"
	PermReportsRead     = "reports:read"
	PermAdminRead       = "admin:read"
	PermAdminWrite      = "admin:write"
	PermWhitelistManage = "whitelist:manage"
)

// roleDefaults is the static role -> permission-set table. Resolution starts
// here; a whitelist grant replaces (never merges with) the defaults.
var roleDefaults = map[Role][]string{
	RoleAdmin: {
		PermRecordsRead, PermRecordsWrite, PermRecordsDelete,
		PermReportsRead, PermAdminRead, PermAdminWrite, PermWhitelistManage,
	},
	RoleManager: {
		PermRecordsRead, PermRecordsWrite, PermRecordsDelete, PermReportsRead,
	},
	RoleMember: {
		PermRecordsRead, PermRecordsWrite,
	},
	RoleViewer: {
		PermRecordsRead,
	},
}

// RoleDefaults returns a copy of the default permission set for a role.
// Unknown roles get no permissions.
func RoleDefaults(r Role) []string {
	defaults, ok := roleDefaults[r]
	if !ok {
		return nil
	}
	out := make([]string, len(defaults))
	copy(out, defaults)
	return out
}

// ValidRole reports whether r is a recognized role.
func ValidRole(r Role) bool {
	_, ok := roleDefaults[r]
	return ok
}
