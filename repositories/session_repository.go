package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/defuselab/defusal-tournament/models"
)

var (
	ErrSessionNotFound = errors.New("game session not found")

	// ErrSessionNotRunning marks a completion report for a session that has
	// already been concluded; callers treat it as an idempotent no-op.
	ErrSessionNotRunning = errors.New("game session is not running")
)

type SessionRepository interface {
	Create(ctx context.Context, exec SQLExecutor, session *models.GameSession) error
	GetByID(ctx context.Context, id int) (*models.GameSession, error)
	// Conclude flips a running session to the given terminal status; it
	// matches only running rows so concurrent reports settle on one winner.
	Conclude(ctx context.Context, exec SQLExecutor, id int, status models.SessionStatus, completedAt time.Time, attempts int) error
	// ListOverdue returns running sessions whose deadline has passed.
	ListOverdue(ctx context.Context, now time.Time) ([]*models.GameSession, error)
}

type postgresSessionRepository struct {
	db *sql.DB
}

func NewPostgresSessionRepository(db *sql.DB) SessionRepository {
	return &postgresSessionRepository{db: db}
}

func (r *postgresSessionRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const sessionColumns = `
	id, tournament_id, team_id, round, seed, status,
	started_at, deadline, completed_at, attempts`

func (r *postgresSessionRepository) Create(ctx context.Context, exec SQLExecutor, s *models.GameSession) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO game_sessions (tournament_id, team_id, round, seed, status, started_at, deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	err := executor.QueryRowContext(ctx, query,
		s.TournamentID, s.TeamID, s.Round, s.Seed, s.Status, s.StartedAt, s.Deadline,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to create game session: %w", err)
	}
	return nil
}

func (r *postgresSessionRepository) GetByID(ctx context.Context, id int) (*models.GameSession, error) {
	query := `SELECT` + sessionColumns + ` FROM game_sessions WHERE id = $1`

	s := &models.GameSession{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.TournamentID, &s.TeamID, &s.Round, &s.Seed, &s.Status,
		&s.StartedAt, &s.Deadline, &s.CompletedAt, &s.Attempts,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get game session %d: %w", id, err)
	}
	return s, nil
}

func (r *postgresSessionRepository) Conclude(ctx context.Context, exec SQLExecutor, id int, status models.SessionStatus, completedAt time.Time, attempts int) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE game_sessions SET status = $1, completed_at = $2, attempts = $3
		WHERE id = $4 AND status = $5`

	result, err := executor.ExecContext(ctx, query, status, completedAt, attempts, id, models.SessionRunning)
	if err != nil {
		return fmt.Errorf("failed to conclude game session %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrSessionNotRunning)
}

func (r *postgresSessionRepository) ListOverdue(ctx context.Context, now time.Time) ([]*models.GameSession, error) {
	query := `SELECT` + sessionColumns + ` FROM game_sessions WHERE status = $1 AND deadline <= $2`

	rows, err := r.db.QueryContext(ctx, query, models.SessionRunning, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*models.GameSession, 0)
	for rows.Next() {
		s := &models.GameSession{}
		if scanErr := rows.Scan(
			&s.ID, &s.TournamentID, &s.TeamID, &s.Round, &s.Seed, &s.Status,
			&s.StartedAt, &s.Deadline, &s.CompletedAt, &s.Attempts,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", scanErr)
		}
		sessions = append(sessions, s)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}
