package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/defuselab/defusal-tournament/models"
	"github.com/defuselab/defusal-tournament/repositories"
	"github.com/defuselab/defusal-tournament/storage"
)

// joinMaxRetries is how many times an aborted join transaction is retried
// after the initial attempt, waiting joinBackoff between tries.
const joinMaxRetries = 3

// joinBackoff is the wait before retry n: 100ms, 200ms, 400ms.
func joinBackoff(retry int) time.Duration {
	return time.Duration(100<<retry) * time.Millisecond
}

// QualificationStarter is how the registry signals the state machine once
// the bracket is full and every team is ready.
type QualificationStarter interface {
	BeginQualification(ctx context.Context, tournamentID int) error
}

type JoinTeamInput struct {
	TournamentID int
	UserID       int
	TeamName     string                 `json:"team_name"`
	Role         models.ParticipantRole `json:"role"`
	Nickname     string                 `json:"nickname"`
}

// TeamRegistry admits participants into teams, enforcing capacity and role
// uniqueness under concurrent joins.
type TeamRegistry interface {
	JoinTeam(ctx context.Context, input JoinTeamInput) (*models.Team, error)
	LeaveTeam(ctx context.Context, tournamentID, userID int) error
	UpdateTeamEmblem(ctx context.Context, teamID, userID int, contentType string, reader io.Reader) (*models.Team, error)
}

type teamRegistry struct {
	db              *sql.DB
	tournamentRepo  repositories.TournamentRepository
	teamRepo        repositories.TeamRepository
	participantRepo repositories.ParticipantRepository
	uploader        storage.FileUploader
	starter         QualificationStarter
	logger          *slog.Logger
}

func NewTeamRegistry(
	db *sql.DB,
	tournamentRepo repositories.TournamentRepository,
	teamRepo repositories.TeamRepository,
	participantRepo repositories.ParticipantRepository,
	uploader storage.FileUploader,
	starter QualificationStarter,
	logger *slog.Logger,
) TeamRegistry {
	return &teamRegistry{
		db:              db,
		tournamentRepo:  tournamentRepo,
		teamRepo:        teamRepo,
		participantRepo: participantRepo,
		uploader:        uploader,
		starter:         starter,
		logger:          logger,
	}
}

func validateJoinInput(input JoinTeamInput) error {
	if input.TeamName == "" {
		return ErrTeamNameRequired
	}
	if input.Nickname == "" {
		return ErrNicknameRequired
	}
	if !input.Role.Valid() {
		return ErrInvalidRole
	}
	return nil
}

// rosterReady reports whether a roster fills both seats with distinct roles.
func rosterReady(members []*models.Participant) bool {
	if len(members) != models.TeamSize {
		return false
	}
	var hasDefuser, hasExpert bool
	for _, m := range members {
		switch m.Role {
		case models.RoleDefuser:
			hasDefuser = true
		case models.RoleExpert:
			hasExpert = true
		}
	}
	return hasDefuser && hasExpert
}

// admitToTeam re-validates every admission rule against state read under the
// tournament lock and decides which team the participant lands in. A nil
// team means a new one named input.TeamName must be created.
func admitToTeam(
	tournament *models.Tournament,
	teams []*models.Team,
	rosterOf func(teamID int) ([]*models.Participant, error),
	alreadyParticipating bool,
	input JoinTeamInput,
) (*models.Team, error) {
	if tournament.Status != models.StatusWaiting {
		return nil, ErrTournamentNotJoinable
	}
	if alreadyParticipating {
		return nil, ErrAlreadyParticipating
	}

	var target *models.Team
	for _, team := range teams {
		if team.Name == input.TeamName {
			target = team
			break
		}
	}

	if target == nil {
		if len(teams) >= tournament.MaxGroups {
			return nil, ErrTournamentFull
		}
		return nil, nil
	}

	members, err := rosterOf(target.ID)
	if err != nil {
		return nil, err
	}
	if len(members) >= models.TeamSize {
		return nil, ErrTeamFull
	}
	for _, m := range members {
		if m.Role == input.Role {
			return nil, ErrRoleTaken
		}
	}
	return target, nil
}

func (s *teamRegistry) JoinTeam(ctx context.Context, input JoinTeamInput) (*models.Team, error) {
	if err := validateJoinInput(input); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= joinMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(joinBackoff(attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		team, bracketFull, err := s.joinTeamOnce(ctx, input)
		if err == nil {
			s.logger.Info("participant joined team",
				slog.Int("tournament_id", input.TournamentID),
				slog.Int("user_id", input.UserID),
				slog.Int("team_id", team.ID),
				slog.String("role", string(input.Role)),
			)
			if bracketFull {
				// The commit above made this tournament full and ready;
				// exactly one joiner observes that and starts round 1. The
				// call is idempotent on the state machine side regardless.
				if startErr := s.starter.BeginQualification(ctx, input.TournamentID); startErr != nil {
					s.logger.Error("failed to begin qualification",
						slog.Int("tournament_id", input.TournamentID),
						slog.Any("error", startErr),
					)
				}
			}
			return team, nil
		}

		if repositories.IsRetryableTxError(err) {
			lastErr = err
			s.logger.Warn("join transaction aborted, retrying",
				slog.Int("tournament_id", input.TournamentID),
				slog.Int("attempt", attempt+1),
				slog.Any("error", err),
			)
			continue
		}
		return nil, err
	}

	return nil, fmt.Errorf("%w: %v", ErrJoinConflictExhausted, lastErr)
}

// joinTeamOnce runs one serializable attempt of the join. The tournament row
// lock is the serialization point; all preconditions are re-checked after it
// is acquired because another join may have landed since the caller looked.
func (s *teamRegistry) joinTeamOnce(ctx context.Context, input JoinTeamInput) (team *models.Team, bracketFull bool, err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin join transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	tournament, err := s.tournamentRepo.GetByIDForUpdate(ctx, tx, input.TournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, false, ErrTournamentNotFound
		}
		return nil, false, err
	}

	teams, err := s.teamRepo.ListByTournament(ctx, tx, input.TournamentID, true)
	if err != nil {
		return nil, false, err
	}

	alreadyIn := false
	if _, findErr := s.participantRepo.FindByUserAndTournament(ctx, tx, input.UserID, input.TournamentID); findErr == nil {
		alreadyIn = true
	} else if !errors.Is(findErr, repositories.ErrParticipantNotFound) {
		return nil, false, findErr
	}

	target, err := admitToTeam(tournament, teams, func(teamID int) ([]*models.Participant, error) {
		return s.participantRepo.ListByTeam(ctx, tx, teamID)
	}, alreadyIn, input)
	if err != nil {
		return nil, false, err
	}

	if target == nil {
		target = &models.Team{
			TournamentID: input.TournamentID,
			Name:         input.TeamName,
			Status:       models.TeamWaiting,
		}
		if err = s.teamRepo.Create(ctx, tx, target); err != nil {
			return nil, false, err
		}
		teams = append(teams, target)
	}

	participant := &models.Participant{
		TeamID:       target.ID,
		TournamentID: input.TournamentID,
		UserID:       input.UserID,
		Role:         input.Role,
		Nickname:     input.Nickname,
	}
	if err = s.participantRepo.Create(ctx, tx, participant); err != nil {
		if errors.Is(err, repositories.ErrParticipantConflict) {
			return nil, false, ErrAlreadyParticipating
		}
		return nil, false, err
	}

	members, err := s.participantRepo.ListByTeam(ctx, tx, target.ID)
	if err != nil {
		return nil, false, err
	}
	if rosterReady(members) {
		if err = s.teamRepo.UpdateStatus(ctx, tx, target.ID, models.TeamReady); err != nil {
			return nil, false, err
		}
		target.Status = models.TeamReady
	}

	bracketFull = len(teams) == tournament.MaxGroups
	if bracketFull {
		for _, t := range teams {
			if t.Status != models.TeamReady {
				bracketFull = false
				break
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit join transaction: %w", err)
	}

	target.Participants = derefParticipants(members)
	return target, bracketFull, nil
}

func (s *teamRegistry) LeaveTeam(ctx context.Context, tournamentID, userID int) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin leave transaction: %w", err)
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
		return ErrCannotLeaveAfterStart
	}

	participant, err := s.participantRepo.FindByUserAndTournament(ctx, tx, userID, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrParticipantNotFound) {
			return ErrNotParticipating
		}
		return err
	}

	if err = s.participantRepo.Delete(ctx, tx, participant.ID); err != nil {
		return err
	}

	remaining, err := s.participantRepo.ListByTeam(ctx, tx, participant.TeamID)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		if err = s.teamRepo.Delete(ctx, tx, participant.TeamID); err != nil {
			return err
		}
	} else if err = s.teamRepo.UpdateStatus(ctx, tx, participant.TeamID, models.TeamWaiting); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit leave transaction: %w", err)
	}

	s.logger.Info("participant left tournament",
		slog.Int("tournament_id", tournamentID),
		slog.Int("user_id", userID),
		slog.Int("team_id", participant.TeamID),
		slog.Bool("team_deleted", len(remaining) == 0),
	)
	return nil
}

func (s *teamRegistry) UpdateTeamEmblem(ctx context.Context, teamID, userID int, contentType string, reader io.Reader) (*models.Team, error) {
	team, err := s.teamRepo.GetByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, err
	}

	member := false
	members, err := s.participantRepo.ListByTeam(ctx, nil, teamID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if m.UserID == userID {
			member = true
			break
		}
	}
	if !member {
		return nil, ErrForbiddenOperation
	}

	ext, err := extensionForContentType(contentType)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("teams/%d/emblem%s", teamID, ext)
	if _, err = s.uploader.Upload(ctx, key, contentType, reader); err != nil {
		return nil, fmt.Errorf("failed to upload team emblem: %w", err)
	}
	if err = s.teamRepo.UpdateEmblemKey(ctx, teamID, &key); err != nil {
		return nil, err
	}

	team.EmblemKey = &key
	populateTeamEmblemURL(team, s.uploader)
	return team, nil
}
