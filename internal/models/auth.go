package models

// Role is the privilege level supplied by the identity provider
type Role string

const (
	RoleUser     Role = "user"
	RoleSubAdmin Role = "sub_admin"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleSubAdmin || r == RoleAdmin
}

// Principal is the authenticated caller of a request. It is passed explicitly
// into every service call that needs to know who is acting.
type Principal struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	Role   Role   `json:"role"`
}

// HasRole reports whether the principal holds one of the given roles
func (p Principal) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// SystemPrincipal is used by background jobs such as expiry sweeps and reconciliation
var SystemPrincipal = Principal{UserID: "system", Role: RoleAdmin}
