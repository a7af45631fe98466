package brackets

import "github.com/defuselab/defusal-tournament/models"

// TeamSlot is one team's line in a bracket round projection.
type TeamSlot struct {
	TeamID            int               `json:"team_id"`
	Name              string            `json:"name"`
	Status            models.TeamStatus `json:"status"`
	CompletionSeconds *int              `json:"completion_seconds,omitempty"`
	Attempts          int               `json:"attempts"`
	Score             int               `json:"score"`
	Rank              *int              `json:"rank,omitempty"`
}

// RoundView is the display projection of one played (or in-progress) round.
type RoundView struct {
	Round   int            `json:"round"`
	Name    string         `json:"name"`
	Matches []models.Match `json:"matches,omitempty"`
	Teams   []TeamSlot     `json:"teams"`
}

// View is the read-only bracket snapshot served to clients. Building it has
// no effect on tournament state.
type View struct {
	TournamentID int                     `json:"tournament_id"`
	Status       models.TournamentStatus `json:"status"`
	CurrentRound int                     `json:"current_round"`
	Rounds       []RoundView             `json:"rounds"`
	ChampionID   *int                    `json:"champion_team_id,omitempty"`
}

// RoundName returns the display name of a round.
func RoundName(round int) string {
	switch round {
	case models.RoundQualification:
		return "Qualification"
	case models.RoundSemifinals:
		return "Semifinals"
	case models.RoundFinals:
		return "Finals"
	default:
		return "Unknown"
	}
}

// SlotForTeam projects a team into its bracket line.
func SlotForTeam(team *models.Team) TeamSlot {
	return TeamSlot{
		TeamID:            team.ID,
		Name:              team.Name,
		Status:            team.Status,
		CompletionSeconds: team.CompletionSeconds,
		Attempts:          team.Attempts,
		Score:             team.Score,
		Rank:              team.Rank,
	}
}
