package domain

// Score weights.
const (
	freshnessWindow = 30
	phoneBonus      = 10
	contactBonus    = 5
	highIncomeBonus = 10
	midIncomeBonus  = 5

	// MaxScore is reached by a lead opened today with phone, email/social,
	// and a High income tier.
	MaxScore = freshnessWindow + phoneBonus + contactBonus + highIncomeBonus
)

// Score computes a lead's ranking heuristic. It is pure and never negative.
func Score(l Lead) int {
	score := min(max(0, freshnessWindow-l.NewnessDays), freshnessWindow)
	if l.Phone != "" {
		score += phoneBonus
	}
	if l.EmailOrSocial != "" {
		score += contactBonus
	}
	switch l.IncomeTier {
	case TierHigh:
		score += highIncomeBonus
	case TierMedium:
		score += midIncomeBonus
	}
	return score
}
