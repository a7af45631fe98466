// Package scoring converts round results into numeric scores. Everything
// here is pure; persistence and ranking live elsewhere.
package scoring

// Config carries the scoring knobs so that per-tournament overrides do not
// require touching package-level constants.
type Config struct {
	BaseScore       int // awarded before bonuses/penalties
	DeadlineSeconds int // round time limit used for the time bonus
	FreeAttempts    int // attempts that carry no penalty
	AttemptPenalty  int // points per attempt beyond FreeAttempts
	MinScore        int // floor; no team records less than this
}

// DefaultConfig matches the standard 30-minute round.
func DefaultConfig() Config {
	return Config{
		BaseScore:       1000,
		DeadlineSeconds: 1800,
		FreeAttempts:    3,
		AttemptPenalty:  50,
		MinScore:        100,
	}
}

// Compute scores one team's round: base plus remaining-time bonus, minus a
// penalty for attempts beyond the free allowance, floored at cfg.MinScore.
func Compute(cfg Config, elapsedSeconds, attempts int) int {
	timeBonus := cfg.DeadlineSeconds - elapsedSeconds
	if timeBonus < 0 {
		timeBonus = 0
	}

	attemptPenalty := 0
	if attempts > cfg.FreeAttempts {
		attemptPenalty = (attempts - cfg.FreeAttempts) * cfg.AttemptPenalty
	}

	score := cfg.BaseScore + timeBonus - attemptPenalty
	if score < cfg.MinScore {
		score = cfg.MinScore
	}
	return score
}

// ComputeCollaboration is a secondary teamwork metric: base 50, minus 2 per
// attempt beyond 10, plus a 25-point bonus for finishing under 20 minutes.
// Floored at zero.
func ComputeCollaboration(participantCount, totalAttempts, totalMinutes int) int {
	if participantCount == 0 {
		return 0
	}

	score := 50
	if totalAttempts > 10 {
		score -= (totalAttempts - 10) * 2
	}
	if totalMinutes < 20 {
		score += 25
	}
	if score < 0 {
		score = 0
	}
	return score
}
