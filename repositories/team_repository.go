package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/defuselab/defusal-tournament/models"
)

var (
	ErrTeamNotFound     = errors.New("team not found")
	ErrTeamNameConflict = errors.New("team name is already taken in this tournament")

	// ErrTeamNotPlaying is returned by RecordCompletion when the team is not
	// in the playing state, which is how a duplicate completion report is
	// detected and turned into a no-op by the caller.
	ErrTeamNotPlaying = errors.New("team is not currently playing")
)

type TeamRepository interface {
	Create(ctx context.Context, exec SQLExecutor, team *models.Team) error
	GetByID(ctx context.Context, id int) (*models.Team, error)
	// ListByTournament optionally locks the returned rows (FOR UPDATE) when
	// called inside a transaction that will mutate them.
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, forUpdate bool) ([]*models.Team, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TeamStatus) error
	// ResetForRound clears per-round results and flips the teams to playing.
	ResetForRound(ctx context.Context, exec SQLExecutor, teamIDs []int) error
	// RecordCompletion writes the round result exactly once per round:
	// it only matches a row still in the playing state and returns
	// ErrTeamNotPlaying otherwise.
	RecordCompletion(ctx context.Context, exec SQLExecutor, id int, completionSeconds int, completedAt time.Time, attempts, score int) error
	UpdateRank(ctx context.Context, exec SQLExecutor, id int, rank int) error
	UpdateEmblemKey(ctx context.Context, teamID int, emblemKey *string) error
	Delete(ctx context.Context, exec SQLExecutor, id int) error
}

type postgresTeamRepository struct {
	db *sql.DB
}

func NewPostgresTeamRepository(db *sql.DB) TeamRepository {
	return &postgresTeamRepository{db: db}
}

func (r *postgresTeamRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const teamColumns = `
	id, tournament_id, name, status, completion_seconds, completed_at,
	attempts, score, rank, emblem_key, created_at`

func (r *postgresTeamRepository) Create(ctx context.Context, exec SQLExecutor, t *models.Team) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO teams (tournament_id, name, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query, t.TournamentID, t.Name, t.Status).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == "teams_tournament_id_name_key" {
			return ErrTeamNameConflict
		}
		return fmt.Errorf("failed to create team: %w", err)
	}
	return nil
}

func (r *postgresTeamRepository) GetByID(ctx context.Context, id int) (*models.Team, error) {
	query := `SELECT` + teamColumns + ` FROM teams WHERE id = $1`
	t := &models.Team{}
	err := r.scanTeam(r.db.QueryRowContext(ctx, query, id), t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to get team %d: %w", id, err)
	}
	return t, nil
}

func (r *postgresTeamRepository) scanTeam(rowScanner interface {
	Scan(dest ...interface{}) error
}, t *models.Team) error {
	return rowScanner.Scan(
		&t.ID, &t.TournamentID, &t.Name, &t.Status, &t.CompletionSeconds, &t.CompletedAt,
		&t.Attempts, &t.Score, &t.Rank, &t.EmblemKey, &t.CreatedAt,
	)
}

func (r *postgresTeamRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, forUpdate bool) ([]*models.Team, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + teamColumns + ` FROM teams WHERE tournament_id = $1 ORDER BY created_at ASC`
	if forUpdate {
		query += " FOR UPDATE"
	}

	rows, err := executor.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	teams := make([]*models.Team, 0)
	for rows.Next() {
		t := &models.Team{}
		if scanErr := r.scanTeam(rows, t); scanErr != nil {
			return nil, fmt.Errorf("failed to scan team row: %w", scanErr)
		}
		teams = append(teams, t)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return teams, nil
}

func (r *postgresTeamRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TeamStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE teams SET status = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update team %d status: %w", id, err)
	}
	return checkAffectedRows(result, ErrTeamNotFound)
}

func (r *postgresTeamRepository) ResetForRound(ctx context.Context, exec SQLExecutor, teamIDs []int) error {
	if len(teamIDs) == 0 {
		return nil
	}
	executor := r.getExecutor(exec)
	query := `
		UPDATE teams SET
			status = $1,
			completion_seconds = NULL,
			completed_at = NULL,
			attempts = 0,
			score = 0,
			rank = NULL
		WHERE id = ANY($2)`

	result, err := executor.ExecContext(ctx, query, models.TeamPlaying, pq.Array(teamIDs))
	if err != nil {
		return fmt.Errorf("failed to reset teams for round: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if int(rowsAffected) != len(teamIDs) {
		return fmt.Errorf("reset affected %d of %d teams", rowsAffected, len(teamIDs))
	}
	return nil
}

func (r *postgresTeamRepository) RecordCompletion(ctx context.Context, exec SQLExecutor, id int, completionSeconds int, completedAt time.Time, attempts, score int) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE teams SET
			status = $1,
			completion_seconds = $2,
			completed_at = $3,
			attempts = $4,
			score = $5
		WHERE id = $6 AND status = $7`

	result, err := executor.ExecContext(ctx, query,
		models.TeamCompleted, completionSeconds, completedAt, attempts, score,
		id, models.TeamPlaying,
	)
	if err != nil {
		return fmt.Errorf("failed to record completion for team %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTeamNotPlaying)
}

func (r *postgresTeamRepository) UpdateRank(ctx context.Context, exec SQLExecutor, id int, rank int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE teams SET rank = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, rank, id)
	if err != nil {
		return fmt.Errorf("failed to update team %d rank: %w", id, err)
	}
	return checkAffectedRows(result, ErrTeamNotFound)
}

func (r *postgresTeamRepository) UpdateEmblemKey(ctx context.Context, teamID int, emblemKey *string) error {
	query := `UPDATE teams SET emblem_key = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, emblemKey, teamID)
	if err != nil {
		return fmt.Errorf("failed to update team emblem key: %w", err)
	}
	return checkAffectedRows(result, ErrTeamNotFound)
}

func (r *postgresTeamRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	query := `DELETE FROM teams WHERE id = $1`
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete team %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTeamNotFound)
}
