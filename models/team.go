package models

import "time"

// TeamStatus mirrors the status column on the teams table.
type TeamStatus string

const (
	TeamWaiting    TeamStatus = "waiting"
	TeamReady      TeamStatus = "ready"
	TeamPlaying    TeamStatus = "playing"
	TeamCompleted  TeamStatus = "completed"
	TeamEliminated TeamStatus = "eliminated"
	TeamChampion   TeamStatus = "champion"
)

// TeamSize is the fixed roster size: one defuser and one expert.
const TeamSize = 2

// Team is a two-player unit competing in a tournament. CompletionSeconds,
// Score and Rank describe the current round only and are reset when the
// next round starts.
type Team struct {
	ID                int        `json:"id"`
	TournamentID      int        `json:"tournament_id"`
	Name              string     `json:"name"`
	Status            TeamStatus `json:"status"`
	CompletionSeconds *int       `json:"completion_seconds,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	Attempts          int        `json:"attempts"`
	Score             int        `json:"score"`
	Rank              *int       `json:"rank,omitempty"`
	EmblemKey         *string    `json:"-"`
	EmblemURL         *string    `json:"emblem_url,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`

	Participants []Participant `json:"participants,omitempty"`
}

// InPlay reports whether the team is still competing in the current round,
// i.e. was not eliminated in an earlier one.
func (t *Team) InPlay() bool {
	return t.Status == TeamPlaying || t.Status == TeamCompleted
}
