package models

import "time"

// ParticipantRole is the seat a participant occupies in a team.
// A team holds at most one of each.
type ParticipantRole string

const (
	RoleDefuser ParticipantRole = "defuser"
	RoleExpert  ParticipantRole = "expert"
)

func (r ParticipantRole) Valid() bool {
	return r == RoleDefuser || r == RoleExpert
}

type Participant struct {
	ID           int             `json:"id"`
	TeamID       int             `json:"team_id"`
	TournamentID int             `json:"tournament_id"`
	UserID       int             `json:"user_id"`
	Role         ParticipantRole `json:"role"`
	Nickname     string          `json:"nickname"`
	JoinedAt     time.Time       `json:"joined_at"`
}
