package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/defuselab/defusal-tournament/models"
)

var (
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrTournamentConflict = errors.New("tournament name already exists")

	// ErrTournamentStatusMoved is returned by the compare-and-set status
	// update when the row is no longer in the expected status. Callers use
	// it to detect that another racer already performed the transition.
	ErrTournamentStatusMoved = errors.New("tournament status already advanced")
)

type ListTournamentsFilter struct {
	Status *models.TournamentStatus
	Limit  int
	Offset int
}

type TournamentRepository interface {
	Create(ctx context.Context, tournament *models.Tournament) error
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	// GetByIDForUpdate takes a row lock on the tournament; it must run
	// inside a transaction and is the serialization point for both the
	// join path and round advancement.
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error)
	// AdvanceStatus moves (fromStatus → toStatus, current_round → round)
	// atomically; ErrTournamentStatusMoved if the row was not in fromStatus.
	AdvanceStatus(ctx context.Context, exec SQLExecutor, id int, fromStatus, toStatus models.TournamentStatus, round int) error
	SetChampion(ctx context.Context, exec SQLExecutor, id int, championTeamID int) error
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const tournamentColumns = `
	id, name, status, current_round, max_groups,
	elimination_type, max_completion_seconds, champion_team_id, created_at`

func (r *postgresTournamentRepository) Create(ctx context.Context, t *models.Tournament) error {
	query := `
		INSERT INTO tournaments (name, status, current_round, max_groups, elimination_type, max_completion_seconds)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		t.Name, t.Status, t.CurrentRound, t.MaxGroups,
		t.Rules.EliminationType, t.Rules.MaxCompletionTime,
	).Scan(&t.ID, &t.CreatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == "tournaments_name_key" {
			return ErrTournamentConflict
		}
		return fmt.Errorf("failed to create tournament: %w", err)
	}
	return nil
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *postgresTournamentRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1 FOR UPDATE`
	return r.scanOne(executor.QueryRowContext(ctx, query, id))
}

func (r *postgresTournamentRepository) scanOne(row *sql.Row) (*models.Tournament, error) {
	t := &models.Tournament{}
	err := row.Scan(
		&t.ID, &t.Name, &t.Status, &t.CurrentRound, &t.MaxGroups,
		&t.Rules.EliminationType, &t.Rules.MaxCompletionTime, &t.ChampionTeamID, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to scan tournament: %w", err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE 1=1`
	args := []interface{}{}
	argID := 1

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, *filter.Status)
		argID++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	defer rows.Close()

	tournaments := make([]models.Tournament, 0)
	for rows.Next() {
		var t models.Tournament
		if scanErr := rows.Scan(
			&t.ID, &t.Name, &t.Status, &t.CurrentRound, &t.MaxGroups,
			&t.Rules.EliminationType, &t.Rules.MaxCompletionTime, &t.ChampionTeamID, &t.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan tournament row: %w", scanErr)
		}
		tournaments = append(tournaments, t)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return tournaments, nil
}

func (r *postgresTournamentRepository) AdvanceStatus(ctx context.Context, exec SQLExecutor, id int, fromStatus, toStatus models.TournamentStatus, round int) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE tournaments SET status = $1, current_round = $2
		WHERE id = $3 AND status = $4`

	result, err := executor.ExecContext(ctx, query, toStatus, round, id, fromStatus)
	if err != nil {
		return fmt.Errorf("failed to advance tournament %d status: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentStatusMoved)
}

func (r *postgresTournamentRepository) SetChampion(ctx context.Context, exec SQLExecutor, id int, championTeamID int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET champion_team_id = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, championTeamID, id)
	if err != nil {
		return fmt.Errorf("failed to set tournament %d champion: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}
