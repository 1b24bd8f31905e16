package domain

import "strings"

type ConnectionID string

type UserRole string

const (
	RoleViewer    UserRole = "viewer"
	RoleModerator UserRole = "moderator"
	RoleAdmin     UserRole = "admin"
	RoleOwner     UserRole = "owner"
)

var roleLevels = map[UserRole]int{
	RoleViewer:    1,
	RoleModerator: 2,
	RoleAdmin:     3,
	RoleOwner:     4,
}

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// AtLeast reports whether r grants at least the privileges of required.
func (r UserRole) AtLeast(required UserRole) bool {
	return roleLevels[r] >= roleLevels[required]
}

// Identity is supplied once per connection by the identify frame.
type Identity struct {
	Username    string   `json:"username"`
	Role        UserRole `json:"role"`
	Fingerprint string   `json:"fingerprint,omitempty"`
}

// Key is the value used to collapse several connections of one user into a
// single presence entry.
func (i Identity) Key() string {
	if i.Fingerprint != "" {
		return "fp:" + i.Fingerprint
	}
	return "user:" + strings.ToLower(i.Username)
}
