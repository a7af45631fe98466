package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/defuselab/defusal-tournament/brackets"
	"github.com/defuselab/defusal-tournament/models"
	"github.com/defuselab/defusal-tournament/repositories"
	"github.com/defuselab/defusal-tournament/scoring"
)

type CreateTournamentInput struct {
	Name              string `json:"name"`
	MaxCompletionTime *int   `json:"max_completion_time,omitempty"`
}

// LeaderboardEntry is one team's line in the leaderboard projection.
type LeaderboardEntry struct {
	TeamID             int               `json:"team_id"`
	Name               string            `json:"name"`
	Status             models.TeamStatus `json:"status"`
	Rank               *int              `json:"rank,omitempty"`
	Score              int               `json:"score"`
	CompletionSeconds  *int              `json:"completion_seconds,omitempty"`
	Attempts           int               `json:"attempts"`
	CollaborationScore int               `json:"collaboration_score"`
}

// TournamentView is the full read projection: tournament, bracket, leaderboard.
type TournamentView struct {
	Tournament  *models.Tournament `json:"tournament"`
	Bracket     brackets.View      `json:"bracket"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

// TournamentService is the state machine on top of a tournament: it is the
// only component allowed to change Tournament.Status and CurrentRound.
type TournamentService interface {
	QualificationStarter

	CreateTournament(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error)
	GetTournamentByID(ctx context.Context, id int) (*models.Tournament, error)
	ListTournaments(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error)
	GetTournamentView(ctx context.Context, id int) (*TournamentView, error)
	GetLeaderboard(ctx context.Context, id int) ([]LeaderboardEntry, error)

	// ReportSessionCompletion is the entry point for the game engine's
	// completion signal. Safe to call more than once per session.
	ReportSessionCompletion(ctx context.Context, sessionID, attempts int) error

	// ExpireOverdueSessions force-concludes running sessions past their
	// deadline so one stalled team cannot hang the tournament. Driven by
	// the scheduler in cmd/main.go.
	ExpireOverdueSessions(ctx context.Context) error
}

type tournamentService struct {
	db              *sql.DB
	tournamentRepo  repositories.TournamentRepository
	teamRepo        repositories.TeamRepository
	participantRepo repositories.ParticipantRepository
	sessionRepo     repositories.SessionRepository
	matchRepo       repositories.MatchRepository
	rounds          RoundRunner
	hub             *brackets.Hub
	defaultRules    models.TournamentRules
	logger          *slog.Logger
}

func NewTournamentService(
	db *sql.DB,
	tournamentRepo repositories.TournamentRepository,
	teamRepo repositories.TeamRepository,
	participantRepo repositories.ParticipantRepository,
	sessionRepo repositories.SessionRepository,
	matchRepo repositories.MatchRepository,
	rounds RoundRunner,
	hub *brackets.Hub,
	defaultRules models.TournamentRules,
	logger *slog.Logger,
) TournamentService {
	return &tournamentService{
		db:              db,
		tournamentRepo:  tournamentRepo,
		teamRepo:        teamRepo,
		participantRepo: participantRepo,
		sessionRepo:     sessionRepo,
		matchRepo:       matchRepo,
		rounds:          rounds,
		hub:             hub,
		defaultRules:    defaultRules,
		logger:          logger,
	}
}

func (s *tournamentService) CreateTournament(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error) {
	if input.Name == "" {
		return nil, ErrTournamentNameRequired
	}

	rules := s.defaultRules
	if input.MaxCompletionTime != nil && *input.MaxCompletionTime > 0 {
		rules.MaxCompletionTime = *input.MaxCompletionTime
	}

	tournament := &models.Tournament{
		Name:         input.Name,
		Status:       models.StatusWaiting,
		CurrentRound: models.RoundQualification,
		MaxGroups:    models.MaxGroups,
		Rules:        rules,
	}
	if err := s.tournamentRepo.Create(ctx, tournament); err != nil {
		if errors.Is(err, repositories.ErrTournamentConflict) {
			return nil, ErrTournamentNameConflict
		}
		return nil, err
	}

	s.logger.Info("tournament created",
		slog.Int("tournament_id", tournament.ID),
		slog.String("name", tournament.Name),
	)
	return tournament, nil
}

func (s *tournamentService) GetTournamentByID(ctx context.Context, id int) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return tournament, nil
}

func (s *tournamentService) ListTournaments(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	return s.tournamentRepo.List(ctx, filter)
}

// BeginQualification moves a full, all-ready tournament out of waiting and
// starts round 1. The status compare-and-set makes the transition happen
// exactly once no matter how many joiners race to trigger it.
func (s *tournamentService) BeginQualification(ctx context.Context, tournamentID int) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	tournament, err := s.tournamentRepo.GetByIDForUpdate(ctx, tx, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return ErrTournamentNotFound
		}
		return err
	}
	if tournament.Status != models.StatusWaiting {
		// Another joiner already started the bracket.
		_ = tx.Rollback()
		return nil
	}

	teams, err := s.teamRepo.ListByTournament(ctx, tx, tournamentID, true)
	if err != nil {
		return err
	}
	if len(teams) != tournament.MaxGroups {
		return fmt.Errorf("cannot start qualification with %d of %d teams", len(teams), tournament.MaxGroups)
	}
	for _, team := range teams {
		if team.Status != models.TeamReady {
			return fmt.Errorf("cannot start qualification, team %d is %s", team.ID, team.Status)
		}
	}

	if err = s.tournamentRepo.AdvanceStatus(ctx, tx, tournamentID,
		models.StatusWaiting, models.StatusQualification, models.RoundQualification); err != nil {
		if errors.Is(err, repositories.ErrTournamentStatusMoved) {
			_ = tx.Rollback()
			return nil
		}
		return err
	}
	tournament.Status = models.StatusQualification
	tournament.CurrentRound = models.RoundQualification

	if _, err = s.rounds.StartRound(ctx, tx, tournament, teams, models.RoundQualification); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit qualification start: %w", err)
	}

	s.logger.Info("qualification started", slog.Int("tournament_id", tournamentID))
	s.hub.BroadcastToRoom(brackets.RoomForTournament(tournamentID), brackets.EventRoundStarted, map[string]interface{}{
		"tournament_id": tournamentID,
		"round":         models.RoundQualification,
		"status":        models.StatusQualification,
	})
	return nil
}

func (s *tournamentService) ReportSessionCompletion(ctx context.Context, sessionID, attempts int) error {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repositories.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	if session.Status != models.SessionRunning {
		// Duplicate report; the first one won.
		return nil
	}
	return s.concludeSession(ctx, session, time.Now().UTC(), attempts, false)
}

func (s *tournamentService) ExpireOverdueSessions(ctx context.Context) error {
	overdue, err := s.sessionRepo.ListOverdue(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	for _, session := range overdue {
		s.logger.Warn("forcing completion of overdue session",
			slog.Int("session_id", session.ID),
			slog.Int("tournament_id", session.TournamentID),
			slog.Int("team_id", session.TeamID),
		)
		if err := s.concludeSession(ctx, session, session.Deadline, session.Attempts, true); err != nil {
			s.logger.Error("failed to expire session",
				slog.Int("session_id", session.ID),
				slog.Any("error", err),
			)
		}
	}
	return nil
}

// concludeSession records one team's result and, if that closes the round,
// advances the tournament. The tournament row lock taken first serializes
// racing completion reports: only the caller holding it can observe "round
// complete" and perform the round-closing side effects.
func (s *tournamentService) concludeSession(ctx context.Context, session *models.GameSession, completedAt time.Time, attempts int, expired bool) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	tournament, err := s.tournamentRepo.GetByIDForUpdate(ctx, tx, session.TournamentID)
	if err != nil {
		return err
	}

	if models.StatusForRound(session.Round) != tournament.Status || session.Round != tournament.CurrentRound {
		// Stale signal from an already-closed round: conclude the session
		// so the sweeper stops seeing it, but leave teams untouched.
		if err = s.sessionRepo.Conclude(ctx, tx, session.ID, models.SessionExpired, completedAt, attempts); err != nil {
			if errors.Is(err, repositories.ErrSessionNotRunning) {
				_ = tx.Rollback()
				return nil
			}
			return err
		}
		return tx.Commit()
	}

	score, err := s.rounds.RecordSessionResult(ctx, tx, tournament, session, completedAt, attempts, expired)
	if err != nil {
		if errors.Is(err, ErrResultAlreadyRecorded) {
			_ = tx.Rollback()
			return nil
		}
		return err
	}

	teams, err := s.teamRepo.ListByTournament(ctx, tx, tournament.ID, true)
	if err != nil {
		return err
	}

	var outcome *roundOutcome
	if brackets.RoundComplete(teams) {
		if outcome, err = s.closeRound(ctx, tx, tournament, teams); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session completion: %w", err)
	}

	room := brackets.RoomForTournament(tournament.ID)
	s.hub.BroadcastToRoom(room, brackets.EventTeamCompleted, map[string]interface{}{
		"tournament_id": tournament.ID,
		"team_id":       session.TeamID,
		"round":         session.Round,
		"score":         score,
		"expired":       expired,
	})
	if outcome != nil {
		s.announceRoundOutcome(room, tournament.ID, outcome)
	}
	return nil
}

// roundOutcome captures what closing a round decided, for logs and
// broadcasts after the transaction commits.
type roundOutcome struct {
	Round      int
	Ranked     []*models.Team
	Eliminated []*models.Team
	Champion   *models.Team
	RunnerUp   *models.Team
	NextRound  int
}

// closeRound ranks the finished round, applies the elimination ladder and
// either starts the next round or crowns the champion. Runs under the
// tournament row lock inside the caller's transaction.
func (s *tournamentService) closeRound(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, teams []*models.Team) (*roundOutcome, error) {
	plan, err := brackets.PlanForRound(tournament.CurrentRound)
	if err != nil {
		return nil, err
	}

	ranked := brackets.RankByCompletion(brackets.InPlay(teams))
	for i, team := range ranked {
		if err := s.teamRepo.UpdateRank(ctx, exec, team.ID, i+1); err != nil {
			return nil, err
		}
	}

	outcome := &roundOutcome{Round: tournament.CurrentRound, Ranked: ranked}

	if plan.Terminal {
		champion, runnerUp := ranked[0], ranked[1]
		if err := s.tournamentRepo.AdvanceStatus(ctx, exec, tournament.ID,
			models.StatusFinals, models.StatusCompleted, models.RoundFinals); err != nil {
			if errors.Is(err, repositories.ErrTournamentStatusMoved) {
				return nil, nil
			}
			return nil, err
		}
		if err := s.teamRepo.UpdateStatus(ctx, exec, champion.ID, models.TeamChampion); err != nil {
			return nil, err
		}
		if err := s.tournamentRepo.SetChampion(ctx, exec, tournament.ID, champion.ID); err != nil {
			return nil, err
		}
		if err := s.recordRoundMatch(ctx, exec, tournament.ID, plan.Round, champion, runnerUp); err != nil {
			return nil, err
		}

		tournament.Status = models.StatusCompleted
		tournament.ChampionTeamID = &champion.ID
		outcome.Champion = champion
		outcome.RunnerUp = runnerUp
		return outcome, nil
	}

	survivors := ranked[:plan.Survivors]
	eliminated := ranked[plan.Survivors:]
	for _, team := range eliminated {
		if err := s.teamRepo.UpdateStatus(ctx, exec, team.ID, models.TeamEliminated); err != nil {
			return nil, err
		}
	}
	if err := s.recordRoundMatch(ctx, exec, tournament.ID, plan.Round, survivors[0], eliminated[len(eliminated)-1]); err != nil {
		return nil, err
	}

	nextRound := tournament.CurrentRound + 1
	nextStatus := models.StatusForRound(nextRound)
	if err := s.tournamentRepo.AdvanceStatus(ctx, exec, tournament.ID,
		tournament.Status, nextStatus, nextRound); err != nil {
		if errors.Is(err, repositories.ErrTournamentStatusMoved) {
			return nil, nil
		}
		return nil, err
	}
	tournament.Status = nextStatus
	tournament.CurrentRound = nextRound

	if _, err := s.rounds.StartRound(ctx, exec, tournament, survivors, nextRound); err != nil {
		return nil, err
	}

	outcome.Eliminated = eliminated
	outcome.NextRound = nextRound
	return outcome, nil
}

// recordRoundMatch writes the historical bracket edge for a closed round:
// the round's fastest team against the team it knocked out (or, in finals,
// the runner-up).
func (s *tournamentService) recordRoundMatch(ctx context.Context, exec repositories.SQLExecutor, tournamentID, round int, winner, loser *models.Team) error {
	match := &models.Match{
		TournamentID:       tournamentID,
		Round:              round,
		Team1ID:            winner.ID,
		Team2ID:            &loser.ID,
		WinnerTeamID:       &winner.ID,
		Team1CompletionSec: winner.CompletionSeconds,
		Team2CompletionSec: loser.CompletionSeconds,
	}
	return s.matchRepo.Create(ctx, exec, match)
}

func (s *tournamentService) announceRoundOutcome(room string, tournamentID int, outcome *roundOutcome) {
	if outcome.Champion != nil {
		s.logger.Info("tournament completed",
			slog.Int("tournament_id", tournamentID),
			slog.Int("champion_team_id", outcome.Champion.ID),
			slog.String("champion", outcome.Champion.Name),
		)
		s.hub.BroadcastToRoom(room, brackets.EventTournamentCompleted, map[string]interface{}{
			"tournament_id":    tournamentID,
			"champion_team_id": outcome.Champion.ID,
			"champion":         outcome.Champion.Name,
			"runner_up":        outcome.RunnerUp.Name,
		})
		return
	}

	eliminatedIDs := make([]int, len(outcome.Eliminated))
	for i, team := range outcome.Eliminated {
		eliminatedIDs[i] = team.ID
	}
	s.logger.Info("round closed",
		slog.Int("tournament_id", tournamentID),
		slog.Int("round", outcome.Round),
		slog.Int("next_round", outcome.NextRound),
		slog.Any("eliminated_team_ids", eliminatedIDs),
	)
	s.hub.BroadcastToRoom(room, brackets.EventRoundClosed, map[string]interface{}{
		"tournament_id":       tournamentID,
		"round":               outcome.Round,
		"next_round":          outcome.NextRound,
		"eliminated_team_ids": eliminatedIDs,
	})
	s.hub.BroadcastToRoom(room, brackets.EventRoundStarted, map[string]interface{}{
		"tournament_id": tournamentID,
		"round":         outcome.NextRound,
		"status":        models.StatusForRound(outcome.NextRound),
	})
}

func (s *tournamentService) GetTournamentView(ctx context.Context, id int) (*TournamentView, error) {
	var (
		tournament *models.Tournament
		teams      []*models.Team
		matches    []models.Match
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.GetTournamentByID(gCtx, id)
		if err != nil {
			return err
		}
		tournament = t
		return nil
	})
	g.Go(func() error {
		list, err := s.teamRepo.ListByTournament(gCtx, nil, id, false)
		if err != nil {
			return err
		}
		teams = list
		return nil
	})
	g.Go(func() error {
		list, err := s.matchRepo.ListByTournament(gCtx, id)
		if err != nil {
			return err
		}
		matches = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	participants, err := s.participantRepo.ListByTournament(ctx, id)
	if err != nil {
		return nil, err
	}
	byTeam := make(map[int][]models.Participant)
	for _, p := range participants {
		byTeam[p.TeamID] = append(byTeam[p.TeamID], *p)
	}
	for _, team := range teams {
		team.Participants = byTeam[team.ID]
	}

	view := &TournamentView{
		Tournament:  tournament,
		Bracket:     buildBracketView(tournament, teams, matches),
		Leaderboard: buildLeaderboard(teams),
	}
	return view, nil
}

func (s *tournamentService) GetLeaderboard(ctx context.Context, id int) ([]LeaderboardEntry, error) {
	if _, err := s.GetTournamentByID(ctx, id); err != nil {
		return nil, err
	}
	teams, err := s.teamRepo.ListByTournament(ctx, nil, id, false)
	if err != nil {
		return nil, err
	}
	return buildLeaderboard(teams), nil
}

// buildBracketView assembles the read-only bracket projection. Teams carry
// only their latest round's figures, so earlier rounds show the frozen state
// of the team eliminated there plus the match edge recorded at close.
func buildBracketView(tournament *models.Tournament, teams []*models.Team, matches []models.Match) brackets.View {
	eliminatedIn := make(map[int]int) // team id → round it lost
	matchesByRound := make(map[int][]models.Match)
	for _, m := range matches {
		matchesByRound[m.Round] = append(matchesByRound[m.Round], m)
		if m.Team2ID != nil && m.Round < models.RoundFinals {
			eliminatedIn[*m.Team2ID] = m.Round
		}
	}

	lastRound := tournament.CurrentRound
	if tournament.Status == models.StatusWaiting {
		lastRound = 0
	}

	rounds := make([]brackets.RoundView, 0, lastRound)
	for round := models.RoundQualification; round <= lastRound; round++ {
		rv := brackets.RoundView{
			Round:   round,
			Name:    brackets.RoundName(round),
			Matches: matchesByRound[round],
			Teams:   make([]brackets.TeamSlot, 0, len(teams)),
		}
		for _, team := range teams {
			if lostIn, out := eliminatedIn[team.ID]; out && lostIn < round {
				continue
			}
			rv.Teams = append(rv.Teams, brackets.SlotForTeam(team))
		}
		rounds = append(rounds, rv)
	}

	return brackets.View{
		TournamentID: tournament.ID,
		Status:       tournament.Status,
		CurrentRound: tournament.CurrentRound,
		Rounds:       rounds,
		ChampionID:   tournament.ChampionTeamID,
	}
}

func buildLeaderboard(teams []*models.Team) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(teams))
	for _, team := range teams {
		entry := LeaderboardEntry{
			TeamID:            team.ID,
			Name:              team.Name,
			Status:            team.Status,
			Rank:              team.Rank,
			Score:             team.Score,
			CompletionSeconds: team.CompletionSeconds,
			Attempts:          team.Attempts,
		}
		if team.CompletionSeconds != nil {
			entry.CollaborationScore = scoring.ComputeCollaboration(
				models.TeamSize, team.Attempts, *team.CompletionSeconds/60)
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if (a.Status == models.TeamChampion) != (b.Status == models.TeamChampion) {
			return a.Status == models.TeamChampion
		}
		switch {
		case a.Rank != nil && b.Rank != nil && *a.Rank != *b.Rank:
			return *a.Rank < *b.Rank
		case a.Rank != nil && b.Rank == nil:
			return true
		case a.Rank == nil && b.Rank != nil:
			return false
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Name < b.Name
	})
	return entries
}
