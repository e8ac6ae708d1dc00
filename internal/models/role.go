package models

// Role is the closed set of permission tiers. Roles are totally ordered:
// user < admin < sysadmin. Authorization compares ranks, never strings.
type Role string

const (
	RoleUser     Role = "user"
	RoleAdmin    Role = "admin"
	RoleSysadmin Role = "sysadmin"
)

var roleRanks = map[Role]int{
	RoleUser:     1,
	RoleAdmin:    2,
	RoleSysadmin: 3,
}

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	_, ok := roleRanks[r]
	return ok
}

// Rank returns the ordinal rank of the role. Unknown roles rank 0, below
// every valid role, so a corrupted claim never passes an authorization check.
func (r Role) Rank() int {
	return roleRanks[r]
}

// AtLeast reports whether r grants everything required grants.
func (r Role) AtLeast(required Role) bool {
	return r.Rank() >= required.Rank() && r.IsValid()
}

func (r Role) String() string {
	return string(r)
}
