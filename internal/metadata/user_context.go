package metadata

import "strings"

// UserContext represents the authenticated user, set by auth middleware.
type UserContext struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// HasAnyRole reports whether the user holds at least one of roles.
// Role names compare case-insensitively.
func (u *UserContext) HasAnyRole(roles []string) bool {
	if u == nil {
		return false
	}
	for _, ur := range u.Roles {
		for _, r := range roles {
			if strings.EqualFold(ur, r) {
				return true
			}
		}
	}
	return false
}

// IsAdmin checks whether the user has the admin role.
func (u *UserContext) IsAdmin() bool {
	return u.HasAnyRole([]string{"admin"})
}
