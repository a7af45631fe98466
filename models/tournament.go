package models

import "time"

// TournamentStatus mirrors the status column on the tournaments table.
// Transitions are strictly forward; there is no path back from completed.
type TournamentStatus string

const (
	StatusWaiting       TournamentStatus = "waiting"
	StatusQualification TournamentStatus = "qualification"
	StatusSemifinals    TournamentStatus = "semifinals"
	StatusFinals        TournamentStatus = "finals"
	StatusCompleted     TournamentStatus = "completed"
)

const (
	RoundQualification = 1
	RoundSemifinals    = 2
	RoundFinals        = 3

	// MaxGroups is the fixed bracket size. The 4→3→2→1 elimination ladder
	// is hardcoded across brackets and services; changing this constant
	// alone does not generalize the bracket.
	MaxGroups = 4
)

// EliminationSlowestOut drops the slowest teams at the end of each round.
// It is the only elimination type currently implemented.
const EliminationSlowestOut = "slowest_out"

// TournamentRules are the per-tournament knobs stored alongside the row.
type TournamentRules struct {
	EliminationType   string `json:"elimination_type"`
	MaxCompletionTime int    `json:"max_completion_time"` // seconds per round
}

type Tournament struct {
	ID             int              `json:"id"`
	Name           string           `json:"name"`
	Status         TournamentStatus `json:"status"`
	CurrentRound   int              `json:"current_round"`
	MaxGroups      int              `json:"max_groups"`
	Rules          TournamentRules  `json:"rules"`
	ChampionTeamID *int             `json:"champion_team_id,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`

	// Optional associations, loaded on demand.
	Teams []Team `json:"teams,omitempty"`
}

// StatusForRound maps a round number to the tournament status in which
// that round is played.
func StatusForRound(round int) TournamentStatus {
	switch round {
	case RoundQualification:
		return StatusQualification
	case RoundSemifinals:
		return StatusSemifinals
	case RoundFinals:
		return StatusFinals
	default:
		return StatusCompleted
	}
}
