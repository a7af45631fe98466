package models

import "time"

// SessionStatus mirrors the status column on the game_sessions table.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionExpired   SessionStatus = "expired"
)

// GameSession is a reference to one team's puzzle run in one round. The
// puzzle content itself belongs to the game engine; the tournament core
// only starts sessions and consumes their completion signal.
type GameSession struct {
	ID           int           `json:"id"`
	TournamentID int           `json:"tournament_id"`
	TeamID       int           `json:"team_id"`
	Round        int           `json:"round"`
	Seed         string        `json:"seed"`
	Status       SessionStatus `json:"status"`
	StartedAt    time.Time     `json:"started_at"`
	Deadline     time.Time     `json:"deadline"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	Attempts     int           `json:"attempts"`
}
