package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defuselab/defusal-tournament/models"
)

func waitingTournament() *models.Tournament {
	return &models.Tournament{
		ID:        1,
		Name:      "Weekly Defusal Cup",
		Status:    models.StatusWaiting,
		MaxGroups: models.MaxGroups,
	}
}

func joinInput(teamName string, role models.ParticipantRole) JoinTeamInput {
	return JoinTeamInput{
		TournamentID: 1,
		UserID:       10,
		TeamName:     teamName,
		Role:         role,
		Nickname:     "wirecutter",
	}
}

func rosterFixture(members map[int][]*models.Participant) func(int) ([]*models.Participant, error) {
	return func(teamID int) ([]*models.Participant, error) {
		return members[teamID], nil
	}
}

func TestValidateJoinInput(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validateJoinInput(joinInput("Alpha", models.RoleDefuser)))
	})

	t.Run("missing team name", func(t *testing.T) {
		input := joinInput("", models.RoleDefuser)
		assert.ErrorIs(t, validateJoinInput(input), ErrTeamNameRequired)
	})

	t.Run("missing nickname", func(t *testing.T) {
		input := joinInput("Alpha", models.RoleDefuser)
		input.Nickname = ""
		assert.ErrorIs(t, validateJoinInput(input), ErrNicknameRequired)
	})

	t.Run("bad role", func(t *testing.T) {
		input := joinInput("Alpha", models.ParticipantRole("spectator"))
		assert.ErrorIs(t, validateJoinInput(input), ErrInvalidRole)
	})
}

func TestRosterReady(t *testing.T) {
	tests := []struct {
		name    string
		members []*models.Participant
		want    bool
	}{
		{
			name: "defuser and expert",
			members: []*models.Participant{
				{Role: models.RoleDefuser},
				{Role: models.RoleExpert},
			},
			want: true,
		},
		{
			name:    "single member",
			members: []*models.Participant{{Role: models.RoleDefuser}},
			want:    false,
		},
		{
			name:    "empty",
			members: nil,
			want:    false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rosterReady(tt.members))
		})
	}
}

func TestAdmitToTeam(t *testing.T) {
	t.Run("new team when name unknown", func(t *testing.T) {
		tournament := waitingTournament()
		teams := []*models.Team{{ID: 1, Name: "Alpha"}}

		target, err := admitToTeam(tournament, teams, rosterFixture(nil), false, joinInput("Bravo", models.RoleExpert))
		require.NoError(t, err)
		assert.Nil(t, target, "unknown team name should request creation")
	})

	t.Run("joins existing team with free role", func(t *testing.T) {
		tournament := waitingTournament()
		teams := []*models.Team{{ID: 1, Name: "Alpha"}}
		members := map[int][]*models.Participant{
			1: {{Role: models.RoleDefuser}},
		}

		target, err := admitToTeam(tournament, teams, rosterFixture(members), false, joinInput("Alpha", models.RoleExpert))
		require.NoError(t, err)
		require.NotNil(t, target)
		assert.Equal(t, 1, target.ID)
	})

	t.Run("rejects taken role", func(t *testing.T) {
		tournament := waitingTournament()
		teams := []*models.Team{{ID: 1, Name: "Alpha"}}
		members := map[int][]*models.Participant{
			1: {{Role: models.RoleDefuser}},
		}

		_, err := admitToTeam(tournament, teams, rosterFixture(members), false, joinInput("Alpha", models.RoleDefuser))
		assert.ErrorIs(t, err, ErrRoleTaken)
	})

	t.Run("rejects full team", func(t *testing.T) {
		tournament := waitingTournament()
		teams := []*models.Team{{ID: 1, Name: "Alpha"}}
		members := map[int][]*models.Participant{
			1: {{Role: models.RoleDefuser}, {Role: models.RoleExpert}},
		}

		_, err := admitToTeam(tournament, teams, rosterFixture(members), false, joinInput("Alpha", models.RoleExpert))
		assert.ErrorIs(t, err, ErrTeamFull)
	})

	t.Run("rejects full bracket for new team", func(t *testing.T) {
		tournament := waitingTournament()
		teams := []*models.Team{
			{ID: 1, Name: "Alpha"}, {ID: 2, Name: "Bravo"},
			{ID: 3, Name: "Charlie"}, {ID: 4, Name: "Delta"},
		}

		_, err := admitToTeam(tournament, teams, rosterFixture(nil), false, joinInput("Echo", models.RoleExpert))
		assert.ErrorIs(t, err, ErrTournamentFull)
	})

	t.Run("rejects started tournament", func(t *testing.T) {
		tournament := waitingTournament()
		tournament.Status = models.StatusQualification

		_, err := admitToTeam(tournament, nil, rosterFixture(nil), false, joinInput("Alpha", models.RoleDefuser))
		assert.ErrorIs(t, err, ErrTournamentNotJoinable)
	})

	t.Run("rejects double participation", func(t *testing.T) {
		tournament := waitingTournament()

		_, err := admitToTeam(tournament, nil, rosterFixture(nil), true, joinInput("Alpha", models.RoleDefuser))
		assert.ErrorIs(t, err, ErrAlreadyParticipating)
	})
}

func TestJoinBackoff(t *testing.T) {
	// Every retry tier must be reachable: the loop runs the initial attempt
	// plus joinMaxRetries retries, sleeping joinBackoff(0..joinMaxRetries-1).
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	require.Len(t, want, joinMaxRetries)
	for retry := 0; retry < joinMaxRetries; retry++ {
		assert.Equal(t, want[retry], joinBackoff(retry))
	}
}
