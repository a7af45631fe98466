package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defuselab/defusal-tournament/brackets"
	"github.com/defuselab/defusal-tournament/models"
	"github.com/defuselab/defusal-tournament/repositories"
)

func intPtr(v int) *int { return &v }

// stubTournamentRepo tracks the authoritative row status so AdvanceStatus
// behaves like the real compare-and-set.
type stubTournamentRepo struct {
	status      models.TournamentStatus
	round       int
	championID  *int
	transitions []models.TournamentStatus
}

func (r *stubTournamentRepo) Create(ctx context.Context, tournament *models.Tournament) error {
	return nil
}

func (r *stubTournamentRepo) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	return nil, repositories.ErrTournamentNotFound
}

func (r *stubTournamentRepo) GetByIDForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	return nil, repositories.ErrTournamentNotFound
}

func (r *stubTournamentRepo) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	return nil, nil
}

func (r *stubTournamentRepo) AdvanceStatus(ctx context.Context, exec repositories.SQLExecutor, id int, fromStatus, toStatus models.TournamentStatus, round int) error {
	if r.status != fromStatus {
		return repositories.ErrTournamentStatusMoved
	}
	r.status = toStatus
	r.round = round
	r.transitions = append(r.transitions, toStatus)
	return nil
}

func (r *stubTournamentRepo) SetChampion(ctx context.Context, exec repositories.SQLExecutor, id int, championTeamID int) error {
	r.championID = &championTeamID
	return nil
}

type stubTeamRepo struct {
	teams map[int]*models.Team
}

func newStubTeamRepo(teams []*models.Team) *stubTeamRepo {
	byID := make(map[int]*models.Team, len(teams))
	for _, team := range teams {
		byID[team.ID] = team
	}
	return &stubTeamRepo{teams: byID}
}

func (r *stubTeamRepo) Create(ctx context.Context, exec repositories.SQLExecutor, team *models.Team) error {
	r.teams[team.ID] = team
	return nil
}

func (r *stubTeamRepo) GetByID(ctx context.Context, id int) (*models.Team, error) {
	team, ok := r.teams[id]
	if !ok {
		return nil, repositories.ErrTeamNotFound
	}
	return team, nil
}

func (r *stubTeamRepo) ListByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, forUpdate bool) ([]*models.Team, error) {
	out := make([]*models.Team, 0, len(r.teams))
	for _, team := range r.teams {
		out = append(out, team)
	}
	return out, nil
}

func (r *stubTeamRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, status models.TeamStatus) error {
	r.teams[id].Status = status
	return nil
}

func (r *stubTeamRepo) ResetForRound(ctx context.Context, exec repositories.SQLExecutor, teamIDs []int) error {
	for _, id := range teamIDs {
		team := r.teams[id]
		team.Status = models.TeamPlaying
		team.CompletionSeconds = nil
		team.CompletedAt = nil
		team.Attempts = 0
		team.Score = 0
		team.Rank = nil
	}
	return nil
}

func (r *stubTeamRepo) RecordCompletion(ctx context.Context, exec repositories.SQLExecutor, id int, completionSeconds int, completedAt time.Time, attempts, score int) error {
	team := r.teams[id]
	if team.Status != models.TeamPlaying {
		return repositories.ErrTeamNotPlaying
	}
	team.Status = models.TeamCompleted
	team.CompletionSeconds = &completionSeconds
	team.CompletedAt = &completedAt
	team.Attempts = attempts
	team.Score = score
	return nil
}

func (r *stubTeamRepo) UpdateRank(ctx context.Context, exec repositories.SQLExecutor, id int, rank int) error {
	r.teams[id].Rank = &rank
	return nil
}

func (r *stubTeamRepo) UpdateEmblemKey(ctx context.Context, teamID int, emblemKey *string) error {
	return nil
}

func (r *stubTeamRepo) Delete(ctx context.Context, exec repositories.SQLExecutor, id int) error {
	delete(r.teams, id)
	return nil
}

type stubMatchRepo struct {
	matches []models.Match
}

func (r *stubMatchRepo) Create(ctx context.Context, exec repositories.SQLExecutor, match *models.Match) error {
	match.ID = len(r.matches) + 1
	r.matches = append(r.matches, *match)
	return nil
}

func (r *stubMatchRepo) ListByTournament(ctx context.Context, tournamentID int) ([]models.Match, error) {
	return r.matches, nil
}

// stubRoundRunner resets survivors to playing the way the real runner does,
// so successive rounds can be driven through closeRound.
type stubRoundRunner struct {
	started [][]int
}

func (r *stubRoundRunner) StartRound(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, teams []*models.Team, round int) ([]*models.GameSession, error) {
	ids := make([]int, len(teams))
	for i, team := range teams {
		ids[i] = team.ID
		team.Status = models.TeamPlaying
		team.CompletionSeconds = nil
		team.CompletedAt = nil
		team.Attempts = 0
		team.Score = 0
		team.Rank = nil
	}
	r.started = append(r.started, ids)
	return nil, nil
}

func (r *stubRoundRunner) RecordSessionResult(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, session *models.GameSession, completedAt time.Time, attempts int, expired bool) (int, error) {
	return 0, nil
}

func finishTeam(team *models.Team, seconds, attempts int) {
	completedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(seconds) * time.Second)
	team.Status = models.TeamCompleted
	team.CompletionSeconds = &seconds
	team.CompletedAt = &completedAt
	team.Attempts = attempts
}

// TestCloseRoundLadder drives a full bracket through closeRound: four teams
// enter, one drops per round, and after the finals there is exactly one
// champion, one runner-up ranked second and two eliminated teams.
func TestCloseRoundLadder(t *testing.T) {
	ctx := context.Background()

	tournament := &models.Tournament{
		ID:           1,
		Status:       models.StatusQualification,
		CurrentRound: models.RoundQualification,
		MaxGroups:    models.MaxGroups,
	}
	teams := []*models.Team{
		{ID: 1, TournamentID: 1, Name: "Alpha"},
		{ID: 2, TournamentID: 1, Name: "Bravo"},
		{ID: 3, TournamentID: 1, Name: "Charlie"},
		{ID: 4, TournamentID: 1, Name: "Delta"},
	}

	tournamentRepo := &stubTournamentRepo{status: tournament.Status}
	teamRepo := newStubTeamRepo(teams)
	matchRepo := &stubMatchRepo{}
	runner := &stubRoundRunner{}
	service := &tournamentService{
		tournamentRepo: tournamentRepo,
		teamRepo:       teamRepo,
		matchRepo:      matchRepo,
		rounds:         runner,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	// Qualification: Delta is slowest and drops.
	finishTeam(teams[2], 540, 2) // Charlie
	finishTeam(teams[0], 630, 3) // Alpha
	finishTeam(teams[1], 700, 1) // Bravo
	finishTeam(teams[3], 800, 5) // Delta
	require.True(t, brackets.RoundComplete(teams))

	outcome, err := service.closeRound(ctx, nil, tournament, teams)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, models.RoundSemifinals, outcome.NextRound)
	require.Len(t, outcome.Eliminated, 1)
	assert.Equal(t, "Delta", outcome.Eliminated[0].Name)
	assert.Equal(t, models.TeamEliminated, teams[3].Status)
	assert.Equal(t, models.StatusSemifinals, tournament.Status)
	require.Len(t, runner.started, 1)
	assert.Equal(t, []int{3, 1, 2}, runner.started[0], "survivors advance in ranked order")

	// Semifinals: Bravo drops.
	finishTeam(teams[2], 500, 1)
	finishTeam(teams[0], 610, 2)
	finishTeam(teams[1], 720, 4)

	outcome, err = service.closeRound(ctx, nil, tournament, teams)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, models.RoundFinals, outcome.NextRound)
	assert.Equal(t, models.TeamEliminated, teams[1].Status)
	assert.Equal(t, models.StatusFinals, tournament.Status)
	require.Len(t, runner.started, 2)
	assert.Equal(t, []int{3, 1}, runner.started[1])

	// Finals: Charlie beats Alpha.
	finishTeam(teams[2], 450, 1)
	finishTeam(teams[0], 620, 3)

	outcome, err = service.closeRound(ctx, nil, tournament, teams)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	require.NotNil(t, outcome.Champion)
	assert.Equal(t, "Charlie", outcome.Champion.Name)
	require.NotNil(t, outcome.RunnerUp)
	assert.Equal(t, "Alpha", outcome.RunnerUp.Name)

	assert.Equal(t, models.StatusCompleted, tournament.Status)
	require.NotNil(t, tournament.ChampionTeamID)
	assert.Equal(t, 3, *tournament.ChampionTeamID)
	require.NotNil(t, tournamentRepo.championID)
	assert.Equal(t, 3, *tournamentRepo.championID)
	assert.Equal(t, []models.TournamentStatus{
		models.StatusSemifinals,
		models.StatusFinals,
		models.StatusCompleted,
	}, tournamentRepo.transitions)

	champions, eliminated := 0, 0
	for _, team := range teams {
		switch team.Status {
		case models.TeamChampion:
			champions++
		case models.TeamEliminated:
			eliminated++
		}
	}
	assert.Equal(t, 1, champions, "exactly one champion")
	assert.Equal(t, 2, eliminated, "exactly two teams eliminated")

	require.NotNil(t, teams[0].Rank)
	assert.Equal(t, 2, *teams[0].Rank, "runner-up holds rank 2")

	require.Len(t, matchRepo.matches, 3, "one bracket edge per closed round")
	for i, match := range matchRepo.matches {
		assert.Equal(t, i+1, match.Round)
	}
	finals := matchRepo.matches[2]
	require.NotNil(t, finals.WinnerTeamID)
	assert.Equal(t, 3, *finals.WinnerTeamID)
}

// TestCloseRoundAlreadyAdvanced covers the racing closer: when the row status
// already moved on, closeRound is a no-op instead of crowning twice.
func TestCloseRoundAlreadyAdvanced(t *testing.T) {
	ctx := context.Background()

	tournament := &models.Tournament{
		ID:           1,
		Status:       models.StatusFinals,
		CurrentRound: models.RoundFinals,
	}
	teams := []*models.Team{
		{ID: 1, TournamentID: 1, Name: "Alpha"},
		{ID: 3, TournamentID: 1, Name: "Charlie"},
	}
	finishTeam(teams[1], 450, 1)
	finishTeam(teams[0], 620, 3)

	tournamentRepo := &stubTournamentRepo{status: models.StatusCompleted}
	teamRepo := newStubTeamRepo(teams)
	matchRepo := &stubMatchRepo{}
	runner := &stubRoundRunner{}
	service := &tournamentService{
		tournamentRepo: tournamentRepo,
		teamRepo:       teamRepo,
		matchRepo:      matchRepo,
		rounds:         runner,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	outcome, err := service.closeRound(ctx, nil, tournament, teams)
	require.NoError(t, err)
	assert.Nil(t, outcome)

	for _, team := range teams {
		assert.NotEqual(t, models.TeamChampion, team.Status)
	}
	assert.Nil(t, tournamentRepo.championID)
	assert.Empty(t, matchRepo.matches)
	assert.Empty(t, runner.started)
}

func TestBuildLeaderboard(t *testing.T) {
	teams := []*models.Team{
		{ID: 1, Name: "Alpha", Status: models.TeamEliminated, Rank: intPtr(3), Score: 400, CompletionSeconds: intPtr(1500), Attempts: 4},
		{ID: 2, Name: "Bravo", Status: models.TeamChampion, Rank: intPtr(1), Score: 2100, CompletionSeconds: intPtr(600), Attempts: 1},
		{ID: 3, Name: "Charlie", Status: models.TeamEliminated, Rank: intPtr(2), Score: 900, CompletionSeconds: intPtr(1100), Attempts: 2},
		{ID: 4, Name: "Delta", Status: models.TeamEliminated, Rank: nil, Score: 0, Attempts: 0},
	}

	entries := buildLeaderboard(teams)
	require.Len(t, entries, 4)

	assert.Equal(t, "Bravo", entries[0].Name, "champion sorts first")
	assert.Equal(t, "Charlie", entries[1].Name)
	assert.Equal(t, "Alpha", entries[2].Name)
	assert.Equal(t, "Delta", entries[3].Name, "unranked team sorts last")
}

func TestBuildLeaderboardCollaborationScore(t *testing.T) {
	t.Run("fast clean run gets speed bonus", func(t *testing.T) {
		teams := []*models.Team{
			{ID: 1, Name: "Alpha", CompletionSeconds: intPtr(600), Attempts: 2},
		}
		entries := buildLeaderboard(teams)
		assert.Equal(t, 75, entries[0].CollaborationScore)
	})

	t.Run("slow run with many attempts", func(t *testing.T) {
		teams := []*models.Team{
			{ID: 1, Name: "Alpha", CompletionSeconds: intPtr(1700), Attempts: 15},
		}
		entries := buildLeaderboard(teams)
		assert.Equal(t, 40, entries[0].CollaborationScore)
	})

	t.Run("no completion yet means no collaboration score", func(t *testing.T) {
		teams := []*models.Team{
			{ID: 1, Name: "Alpha", Status: models.TeamPlaying},
		}
		entries := buildLeaderboard(teams)
		assert.Zero(t, entries[0].CollaborationScore)
	})
}

func TestBuildBracketView(t *testing.T) {
	tournament := &models.Tournament{
		ID:           1,
		Status:       models.StatusFinals,
		CurrentRound: models.RoundFinals,
	}

	teams := []*models.Team{
		{ID: 1, Name: "Alpha", Status: models.TeamPlaying},
		{ID: 2, Name: "Bravo", Status: models.TeamPlaying},
		{ID: 3, Name: "Charlie", Status: models.TeamEliminated},
		{ID: 4, Name: "Delta", Status: models.TeamEliminated},
	}

	matches := []models.Match{
		{ID: 1, TournamentID: 1, Round: models.RoundQualification, Team1ID: 1, Team2ID: intPtr(4), WinnerTeamID: intPtr(1)},
		{ID: 2, TournamentID: 1, Round: models.RoundSemifinals, Team1ID: 1, Team2ID: intPtr(3), WinnerTeamID: intPtr(1)},
	}

	view := buildBracketView(tournament, teams, matches)

	require.Len(t, view.Rounds, 3)
	assert.Equal(t, models.StatusFinals, view.Status)

	// Round 1 shows all four teams, round 2 drops Delta, round 3 drops Charlie.
	assert.Len(t, view.Rounds[0].Teams, 4)
	assert.Len(t, view.Rounds[1].Teams, 3)
	assert.Len(t, view.Rounds[2].Teams, 2)

	assert.Len(t, view.Rounds[0].Matches, 1)
	assert.Len(t, view.Rounds[1].Matches, 1)
	assert.Empty(t, view.Rounds[2].Matches)
}

func TestBuildBracketViewWaiting(t *testing.T) {
	tournament := &models.Tournament{
		ID:           1,
		Status:       models.StatusWaiting,
		CurrentRound: models.RoundQualification,
	}

	view := buildBracketView(tournament, nil, nil)
	assert.Empty(t, view.Rounds, "no rounds before qualification starts")
}
