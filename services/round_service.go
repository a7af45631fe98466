package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/defuselab/defusal-tournament/models"
	"github.com/defuselab/defusal-tournament/repositories"
	"github.com/defuselab/defusal-tournament/scoring"
)

// ErrResultAlreadyRecorded marks a duplicate completion report. Recording is
// idempotent per team and round, so callers treat this as a no-op.
var ErrResultAlreadyRecorded = errors.New("round result already recorded for this team")

// GameEngine is the external puzzle provider. The tournament core hands it a
// roster and gets back a running session it can only observe.
type GameEngine interface {
	CreateSession(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, team *models.Team, roster []*models.Participant, round int) (*models.GameSession, error)
}

// seededEngine is the default engine binding: it registers a session row
// with a fresh seed and leaves running the puzzle to the game service.
type seededEngine struct {
	sessionRepo repositories.SessionRepository
}

func NewSeededEngine(sessionRepo repositories.SessionRepository) GameEngine {
	return &seededEngine{sessionRepo: sessionRepo}
}

func (e *seededEngine) CreateSession(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, team *models.Team, roster []*models.Participant, round int) (*models.GameSession, error) {
	if len(roster) == 0 {
		return nil, fmt.Errorf("cannot start session for team %d with empty roster", team.ID)
	}

	now := time.Now().UTC()
	session := &models.GameSession{
		TournamentID: tournament.ID,
		TeamID:       team.ID,
		Round:        round,
		Seed:         uuid.NewString(),
		Status:       models.SessionRunning,
		StartedAt:    now,
		Deadline:     now.Add(time.Duration(tournament.Rules.MaxCompletionTime) * time.Second),
	}
	if err := e.sessionRepo.Create(ctx, exec, session); err != nil {
		return nil, err
	}
	return session, nil
}

// RoundRunner starts rounds and records per-team session results. Deciding
// when a round is over and what follows belongs to the state machine.
type RoundRunner interface {
	StartRound(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, teams []*models.Team, round int) ([]*models.GameSession, error)
	RecordSessionResult(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, session *models.GameSession, completedAt time.Time, attempts int, expired bool) (int, error)
}

type roundRunner struct {
	engine          GameEngine
	teamRepo        repositories.TeamRepository
	participantRepo repositories.ParticipantRepository
	sessionRepo     repositories.SessionRepository
	logger          *slog.Logger
}

func NewRoundRunner(
	engine GameEngine,
	teamRepo repositories.TeamRepository,
	participantRepo repositories.ParticipantRepository,
	sessionRepo repositories.SessionRepository,
	logger *slog.Logger,
) RoundRunner {
	return &roundRunner{
		engine:          engine,
		teamRepo:        teamRepo,
		participantRepo: participantRepo,
		sessionRepo:     sessionRepo,
		logger:          logger,
	}
}

// StartRound resets every given team for a fresh round and spawns one game
// session per team. It must run inside the caller's transaction so a failed
// session spawn leaves no team half-started.
func (r *roundRunner) StartRound(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, teams []*models.Team, round int) ([]*models.GameSession, error) {
	teamIDs := make([]int, len(teams))
	for i, team := range teams {
		teamIDs[i] = team.ID
	}
	if err := r.teamRepo.ResetForRound(ctx, exec, teamIDs); err != nil {
		return nil, err
	}

	sessions := make([]*models.GameSession, 0, len(teams))
	for _, team := range teams {
		roster, err := r.participantRepo.ListByTeam(ctx, exec, team.ID)
		if err != nil {
			return nil, err
		}
		session, err := r.engine.CreateSession(ctx, exec, tournament, team, roster, round)
		if err != nil {
			return nil, fmt.Errorf("failed to create session for team %d: %w", team.ID, err)
		}
		sessions = append(sessions, session)

		team.Status = models.TeamPlaying
		team.CompletionSeconds = nil
		team.CompletedAt = nil
		team.Attempts = 0
		team.Score = 0
		team.Rank = nil
	}

	r.logger.Info("round started",
		slog.Int("tournament_id", tournament.ID),
		slog.Int("round", round),
		slog.Int("teams", len(teams)),
	)
	return sessions, nil
}

// RecordSessionResult concludes the session and writes the team's round
// result exactly once. An expired session records one second past the round
// limit and only the floor score, so a team that never finished ranks behind
// every team that did and cannot out-score a slow finisher.
func (r *roundRunner) RecordSessionResult(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, session *models.GameSession, completedAt time.Time, attempts int, expired bool) (int, error) {
	sessionStatus := models.SessionCompleted
	if expired {
		sessionStatus = models.SessionExpired
	}

	if err := r.sessionRepo.Conclude(ctx, exec, session.ID, sessionStatus, completedAt, attempts); err != nil {
		if errors.Is(err, repositories.ErrSessionNotRunning) {
			return 0, ErrResultAlreadyRecorded
		}
		return 0, err
	}

	cfg := scoring.DefaultConfig()
	cfg.DeadlineSeconds = tournament.Rules.MaxCompletionTime

	elapsed := int(completedAt.Sub(session.StartedAt).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}

	var score int
	if expired {
		elapsed = tournament.Rules.MaxCompletionTime + 1
		score = cfg.MinScore
	} else {
		score = scoring.Compute(cfg, elapsed, attempts)
	}

	if err := r.teamRepo.RecordCompletion(ctx, exec, session.TeamID, elapsed, completedAt, attempts, score); err != nil {
		if errors.Is(err, repositories.ErrTeamNotPlaying) {
			return 0, ErrResultAlreadyRecorded
		}
		return 0, err
	}

	r.logger.Info("team completed round",
		slog.Int("tournament_id", session.TournamentID),
		slog.Int("team_id", session.TeamID),
		slog.Int("round", session.Round),
		slog.Int("completion_seconds", elapsed),
		slog.Int("attempts", attempts),
		slog.Int("score", score),
		slog.Bool("expired", expired),
	)
	return score, nil
}
