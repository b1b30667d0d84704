package models

// Invitation status values. Like join requests, resolved invitations are
// absorbing states.
const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
	InvitationDeclined = "declined"
)

// Invitation is an email invite issued by a team member. Invitations are
// created by the invite-send flow outside this core and only resolved here.
type Invitation struct {
	BaseModel

	InviterID    string  `gorm:"type:uuid;not null" json:"inviter_id"`
	InviteeEmail string  `gorm:"not null;index" json:"invitee_email" validate:"required,email"`
	TeamID       string  `gorm:"type:uuid;not null;index" json:"team_id"`
	Referral     *string `json:"referral,omitempty"`
	Status       string  `gorm:"not null;default:pending;index" json:"status"`

	Team *Team `json:"team,omitempty"`
}

// For reports whether the invitation targets the given team.
func (i Invitation) For(teamID string) bool {
	return i.TeamID == teamID
}

// Pending reports whether the invitation can still be resolved.
func (i Invitation) Pending() bool {
	return i.Status == InvitationPending
}
