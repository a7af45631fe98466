package models

import "time"

// Match is a historical bracket-edge record written when a round closes.
// Progression is driven by team status and completion times, not by these
// rows; they exist for bracket display only.
type Match struct {
	ID                 int       `json:"id"`
	TournamentID       int       `json:"tournament_id"`
	Round              int       `json:"round"`
	Team1ID            int       `json:"team1_id"`
	Team2ID            *int      `json:"team2_id,omitempty"`
	WinnerTeamID       *int      `json:"winner_team_id,omitempty"`
	Team1CompletionSec *int      `json:"team1_completion_seconds,omitempty"`
	Team2CompletionSec *int      `json:"team2_completion_seconds,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}
