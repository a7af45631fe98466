// Package brackets holds the elimination ladder for a tournament: ranking,
// survivor/elimination policy and the read-only bracket projection, plus the
// websocket hub that pushes bracket updates to spectators.
package brackets

import (
	"fmt"
	"sort"

	"github.com/defuselab/defusal-tournament/models"
)

// The ladder is fixed at 4→3→2→1: one team drops per round until the finals
// crown a champion. This mirrors the product rules and is deliberately not
// generalized to other bracket sizes.
var survivorsByRound = map[int]int{
	models.RoundQualification: 3,
	models.RoundSemifinals:    2,
	models.RoundFinals:        1,
}

// RoundPlan describes what has to happen when a round closes.
type RoundPlan struct {
	Round     int
	Survivors int
	Terminal  bool // finals: winner becomes champion instead of advancing
}

// PlanForRound returns the elimination plan for the given round.
func PlanForRound(round int) (RoundPlan, error) {
	survivors, ok := survivorsByRound[round]
	if !ok {
		return RoundPlan{}, fmt.Errorf("no elimination plan for round %d", round)
	}
	return RoundPlan{
		Round:     round,
		Survivors: survivors,
		Terminal:  round == models.RoundFinals,
	}, nil
}

// RankByCompletion orders the given teams fastest first and assigns 1-based
// ranks. Ties break on fewer attempts, then earlier completion timestamp,
// then lower team ID, so the order is always total: no two teams ever share
// a rank. Teams without a recorded completion sort last. The input slice is
// not modified; the returned teams carry the assigned ranks.
func RankByCompletion(teams []*models.Team) []*models.Team {
	ranked := make([]*models.Team, len(teams))
	copy(ranked, teams)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]

		switch {
		case a.CompletionSeconds == nil && b.CompletionSeconds == nil:
			return a.ID < b.ID
		case a.CompletionSeconds == nil:
			return false
		case b.CompletionSeconds == nil:
			return true
		}

		if *a.CompletionSeconds != *b.CompletionSeconds {
			return *a.CompletionSeconds < *b.CompletionSeconds
		}
		if a.Attempts != b.Attempts {
			return a.Attempts < b.Attempts
		}
		if a.CompletedAt != nil && b.CompletedAt != nil && !a.CompletedAt.Equal(*b.CompletedAt) {
			return a.CompletedAt.Before(*b.CompletedAt)
		}
		return a.ID < b.ID
	})

	for i, team := range ranked {
		rank := i + 1
		team.Rank = &rank
	}
	return ranked
}

// RoundComplete reports whether every team still in play has finished its
// session. A round with no teams in play is not a completed round.
func RoundComplete(teams []*models.Team) bool {
	inPlay := 0
	for _, team := range teams {
		if !team.InPlay() {
			continue
		}
		inPlay++
		if team.Status != models.TeamCompleted {
			return false
		}
	}
	return inPlay > 0
}

// InPlay filters the teams still competing in the current round.
func InPlay(teams []*models.Team) []*models.Team {
	out := make([]*models.Team, 0, len(teams))
	for _, team := range teams {
		if team.InPlay() {
			out = append(out, team)
		}
	}
	return out
}
