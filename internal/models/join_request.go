package models

// JoinRequest status values. Transitions are one-way and terminal:
// pending -> approved or pending -> denied, never both.
const (
	JoinRequestPending  = "pending"
	JoinRequestApproved = "approved"
	JoinRequestDenied   = "denied"
)

// JoinRequest is a user-initiated request for team membership that a team
// admin must approve.
type JoinRequest struct {
	BaseModel

	TeamID string `gorm:"type:uuid;not null;uniqueIndex:idx_join_requests_team_user" json:"team_id"`
	UserID string `gorm:"type:uuid;not null;uniqueIndex:idx_join_requests_team_user" json:"user_id"`
	Status string `gorm:"not null;default:pending;index" json:"status"`

	Team *Team `json:"team,omitempty"`
	User *User `json:"user,omitempty"`
}

// Pending reports whether the request can still be resolved.
func (r JoinRequest) Pending() bool {
	return r.Status == JoinRequestPending
}
