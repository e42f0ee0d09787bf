package services

// Roles allowed to moderate comments
const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
)

// Actor is the authenticated caller of a service operation. SessionID names
// the editing session and is part of lease ownership.
type Actor struct {
	UserID    string
	SessionID string
	Roles     []string
}

// HasRole reports whether the actor carries role
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsModerator reports whether the actor may delete other users' comments
func (a Actor) IsModerator() bool {
	return a.HasRole(RoleAdmin) || a.HasRole(RoleModerator)
}

func (a Actor) validate() error {
	if a.UserID == "" {
		return validation("user id is required")
	}
	return nil
}
