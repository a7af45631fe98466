package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defuselab/defusal-tournament/models"
	"github.com/defuselab/defusal-tournament/repositories"
	"github.com/defuselab/defusal-tournament/scoring"
)

type stubSessionRepo struct {
	sessions map[int]*models.GameSession
}

func newStubSessionRepo(sessions ...*models.GameSession) *stubSessionRepo {
	byID := make(map[int]*models.GameSession, len(sessions))
	for _, session := range sessions {
		byID[session.ID] = session
	}
	return &stubSessionRepo{sessions: byID}
}

func (r *stubSessionRepo) Create(ctx context.Context, exec repositories.SQLExecutor, session *models.GameSession) error {
	session.ID = len(r.sessions) + 1
	r.sessions[session.ID] = session
	return nil
}

func (r *stubSessionRepo) GetByID(ctx context.Context, id int) (*models.GameSession, error) {
	session, ok := r.sessions[id]
	if !ok {
		return nil, repositories.ErrSessionNotFound
	}
	return session, nil
}

func (r *stubSessionRepo) Conclude(ctx context.Context, exec repositories.SQLExecutor, id int, status models.SessionStatus, completedAt time.Time, attempts int) error {
	session, ok := r.sessions[id]
	if !ok || session.Status != models.SessionRunning {
		return repositories.ErrSessionNotRunning
	}
	session.Status = status
	session.Attempts = attempts
	return nil
}

func (r *stubSessionRepo) ListOverdue(ctx context.Context, now time.Time) ([]*models.GameSession, error) {
	var overdue []*models.GameSession
	for _, session := range r.sessions {
		if session.Status == models.SessionRunning && session.Deadline.Before(now) {
			overdue = append(overdue, session)
		}
	}
	return overdue, nil
}

func roundTestFixture(limit int) (*models.Tournament, *models.Team, *models.GameSession) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tournament := &models.Tournament{
		ID:           1,
		Status:       models.StatusQualification,
		CurrentRound: models.RoundQualification,
		Rules:        models.TournamentRules{EliminationType: models.EliminationSlowestOut, MaxCompletionTime: limit},
	}
	team := &models.Team{ID: 1, TournamentID: 1, Name: "Alpha", Status: models.TeamPlaying}
	session := &models.GameSession{
		ID:           1,
		TournamentID: 1,
		TeamID:       1,
		Round:        models.RoundQualification,
		Status:       models.SessionRunning,
		StartedAt:    started,
		Deadline:     started.Add(time.Duration(limit) * time.Second),
	}
	return tournament, team, session
}

func newTestRoundRunner(teamRepo repositories.TeamRepository, sessionRepo repositories.SessionRepository) RoundRunner {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRoundRunner(nil, teamRepo, nil, sessionRepo, logger)
}

func TestRecordSessionResultCompleted(t *testing.T) {
	tournament, team, session := roundTestFixture(1800)
	teamRepo := newStubTeamRepo([]*models.Team{team})
	sessionRepo := newStubSessionRepo(session)
	runner := newTestRoundRunner(teamRepo, sessionRepo)

	completedAt := session.StartedAt.Add(600 * time.Second)
	score, err := runner.RecordSessionResult(context.Background(), nil, tournament, session, completedAt, 2, false)
	require.NoError(t, err)

	// 1000 base + 1200 remaining seconds, no attempt penalty.
	assert.Equal(t, 2200, score)
	assert.Equal(t, models.SessionCompleted, session.Status)
	require.NotNil(t, team.CompletionSeconds)
	assert.Equal(t, 600, *team.CompletionSeconds)
	assert.Equal(t, models.TeamCompleted, team.Status)
}

func TestRecordSessionResultExpired(t *testing.T) {
	const limit = 1800
	tournament, team, session := roundTestFixture(limit)
	teamRepo := newStubTeamRepo([]*models.Team{team})
	sessionRepo := newStubSessionRepo(session)
	runner := newTestRoundRunner(teamRepo, sessionRepo)

	score, err := runner.RecordSessionResult(context.Background(), nil, tournament, session, session.Deadline, 9, true)
	require.NoError(t, err)

	cfg := scoring.DefaultConfig()
	assert.Equal(t, cfg.MinScore, score, "an expired session only earns the floor score")
	assert.Equal(t, models.SessionExpired, session.Status)

	// The recorded time sits past the round limit so every real finisher,
	// however slow, ranks ahead of a team that never finished.
	require.NotNil(t, team.CompletionSeconds)
	assert.Equal(t, limit+1, *team.CompletionSeconds)
	assert.Equal(t, cfg.MinScore, team.Score)
}

func TestRecordSessionResultIdempotent(t *testing.T) {
	tournament, team, session := roundTestFixture(1800)
	teamRepo := newStubTeamRepo([]*models.Team{team})
	sessionRepo := newStubSessionRepo(session)
	runner := newTestRoundRunner(teamRepo, sessionRepo)

	completedAt := session.StartedAt.Add(600 * time.Second)
	_, err := runner.RecordSessionResult(context.Background(), nil, tournament, session, completedAt, 2, false)
	require.NoError(t, err)

	_, err = runner.RecordSessionResult(context.Background(), nil, tournament, session, completedAt.Add(time.Minute), 5, false)
	assert.ErrorIs(t, err, ErrResultAlreadyRecorded)
	assert.Equal(t, 600, *team.CompletionSeconds, "the first report wins")
}

func TestRecordSessionResultExpiredCannotOutscoreFinisher(t *testing.T) {
	const limit = 1800
	tournament, slowTeam, slowSession := roundTestFixture(limit)
	expiredTeam := &models.Team{ID: 2, TournamentID: 1, Name: "Bravo", Status: models.TeamPlaying}
	expiredSession := &models.GameSession{
		ID:           2,
		TournamentID: 1,
		TeamID:       2,
		Round:        models.RoundQualification,
		Status:       models.SessionRunning,
		StartedAt:    slowSession.StartedAt,
		Deadline:     slowSession.Deadline,
	}
	teamRepo := newStubTeamRepo([]*models.Team{slowTeam, expiredTeam})
	sessionRepo := newStubSessionRepo(slowSession, expiredSession)
	runner := newTestRoundRunner(teamRepo, sessionRepo)

	// The finisher defuses at the very last second with a pile of attempts.
	slowScore, err := runner.RecordSessionResult(context.Background(), nil, tournament, slowSession, slowSession.Deadline, 30, false)
	require.NoError(t, err)

	expiredScore, err := runner.RecordSessionResult(context.Background(), nil, tournament, expiredSession, expiredSession.Deadline, 0, true)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, slowScore, expiredScore)
	assert.Less(t, *slowTeam.CompletionSeconds, *expiredTeam.CompletionSeconds,
		"the finisher ranks ahead of the team that ran out of time")
}

func TestSeededEngineCreateSession(t *testing.T) {
	tournament, team, _ := roundTestFixture(1800)
	sessionRepo := newStubSessionRepo()
	engine := NewSeededEngine(sessionRepo)

	roster := []*models.Participant{
		{ID: 1, TeamID: team.ID, Role: models.RoleDefuser},
		{ID: 2, TeamID: team.ID, Role: models.RoleExpert},
	}
	session, err := engine.CreateSession(context.Background(), nil, tournament, team, roster, models.RoundQualification)
	require.NoError(t, err)

	assert.Equal(t, models.SessionRunning, session.Status)
	assert.NotEmpty(t, session.Seed)
	assert.Equal(t, 1800*time.Second, session.Deadline.Sub(session.StartedAt))

	_, err = engine.CreateSession(context.Background(), nil, tournament, team, nil, models.RoundQualification)
	assert.Error(t, err, "a session needs a roster")
}
