package predict

import (
	"github.com/opensource-commerce/kestrel/internal/domain"
	"github.com/opensource-commerce/kestrel/internal/features"
)

// RulesScore is the deterministic fallback scorer, used whenever no model is
// loaded or inference fails. Additive adjustments over a base of 70, clamped
// to [0,100].
func RulesScore(bag *features.Bag) domain.ScoreResult {
	score := 70.0

	// Buyer return rate impact
	rate := bag.BuyerReturnRate
	switch {
	case rate > 0.3:
		score -= 25
	case rate > 0.2:
		score -= 15
	case rate > 0.1:
		score -= 5
	case rate <= 0.05:
		score += 10
	}

	// Account age impact
	age := bag.BuyerAccountAgeDays
	switch {
	case age < 30:
		score -= 15
	case age < 90:
		score -= 5
	case age > 365:
		score += 10
	}

	// Review score impact, only when the buyer has reviewed at all
	if review := bag.BuyerAvgReviewScore; review > 0 {
		if review < 2 {
			score -= 10
		} else if review > 4 {
			score += 10
		}
	}

	// Days since order impact
	days := bag.DaysSinceOrder
	switch {
	case days > 30:
		score -= 20
	case days > 20:
		score -= 10
	case days < 7:
		score += 5
	}

	// Order amount impact; the larger threshold wins
	amount := bag.OrderAmount
	if amount > 1000 {
		score -= 20
	} else if amount > 500 {
		score -= 10
	}

	// Return reason impact
	switch bag.ReturnReason {
	case domain.ReasonDefective, domain.ReasonDamagedInShipping:
		score += 15
	case domain.ReasonChangedMind:
		score -= 10
	}

	// Product category risk: risk above 0.5 penalizes, below rewards
	score += (0.5 - bag.ProductCategoryRisk) * 20

	return domain.ScoreResult{
		Score:      clampScore(score),
		Confidence: rulesConfidence,
		ModelUsed:  false,
	}
}
