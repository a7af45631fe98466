package services

import "errors"

// Shared service-level errors, mapped to HTTP statuses in handlers.
var (
	ErrNotFound = errors.New("requested resource not found")

	// Admission errors: user-facing, recoverable by the user.
	ErrTournamentNotJoinable = errors.New("tournament is not accepting new participants")
	ErrTournamentFull        = errors.New("tournament already has the maximum number of teams")
	ErrTeamFull              = errors.New("team already has two members")
	ErrRoleTaken             = errors.New("requested role is already taken in this team")
	ErrAlreadyParticipating  = errors.New("user already participates in this tournament")
	ErrNotParticipating      = errors.New("user does not participate in this tournament")
	ErrCannotLeaveAfterStart = errors.New("cannot leave a tournament after it has started")

	// ErrJoinConflictExhausted surfaces after the join transaction aborted
	// on contention more times than the bounded retry allows.
	ErrJoinConflictExhausted = errors.New("could not join due to concurrent updates, please retry")

	// ErrTournamentNameConflict reports a duplicate tournament name.
	ErrTournamentNameConflict = errors.New("tournament name already exists")

	// Validation errors.
	ErrTournamentNameRequired = errors.New("tournament name is required")
	ErrTeamNameRequired       = errors.New("team name is required")
	ErrNicknameRequired       = errors.New("nickname is required")
	ErrInvalidRole            = errors.New("role must be defuser or expert")

	// Entity-specific not-found errors for more context than ErrNotFound.
	ErrUserNotFound       = errors.New("user not found")
	ErrTeamNotFound       = errors.New("team not found")
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrSessionNotFound    = errors.New("game session not found")

	// Authentication.
	ErrAuthInvalidCredentials = errors.New("invalid email or password")
	ErrAuthEmailTaken         = errors.New("email is already taken")
	ErrAuthNicknameTaken      = errors.New("nickname is already taken")
	ErrForbiddenOperation     = errors.New("operation not allowed for the current user")
)
