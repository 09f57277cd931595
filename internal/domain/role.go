package domain

// Role represents a user's access level
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleUser     Role = "user"
	RoleGuest    Role = "guest"
)

// AllRoles contains all valid roles ordered from most to least privileged
var AllRoles = []Role{RoleAdmin, RoleOperator, RoleUser, RoleGuest}

// IsValid checks if a role is valid
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleOperator, RoleUser, RoleGuest:
		return true
	}
	return false
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}
