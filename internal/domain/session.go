package domain

// Session - outing that chat messages and polls are scoped to.
type Session struct {
	ID          string
	OwnerUserID string
	Title       string
}

// Role - role of a user across the application.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// User - viewer identity, authentication happens outside of this module.
type User struct {
	ID          string
	Role        Role
	DisplayName string
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// ParticipationStatus - state of a user's request to join a session.
type ParticipationStatus string

const (
	ParticipationPending  ParticipationStatus = "pending"
	ParticipationAccepted ParticipationStatus = "accepted"
	ParticipationRejected ParticipationStatus = "rejected"
)

// Participation - structure for connecting a user and a session.
type Participation struct {
	SessionID string
	UserID    string
	Status    ParticipationStatus
}
