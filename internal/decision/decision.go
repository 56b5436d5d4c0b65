// Package decision fuses the base eligibility score with detected risk flags
// and maps the result to a risk level and recommended action.
package decision

import (
	"fmt"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

// Per-severity score penalties, cumulative across flags.
const (
	penaltyHigh   = 15.0
	penaltyMedium = 8.0
	penaltyLow    = 3.0
)

// outsideWindowFactor halves the base score before flag penalties apply.
const outsideWindowFactor = 0.5

// Adjust produces the final eligibility score from the predictor's base
// score, the detected flags, and window compliance. The severity enumeration
// is closed; an unknown severity is a programming error and panics rather
// than silently counting as zero.
func Adjust(baseScore float64, flags []domain.RiskFlag, withinWindow bool) float64 {
	score := baseScore
	if !withinWindow {
		score *= outsideWindowFactor
	}

	for _, f := range flags {
		switch f.Severity {
		case domain.SeverityHigh:
			score -= penaltyHigh
		case domain.SeverityMedium:
			score -= penaltyMedium
		case domain.SeverityLow:
			score -= penaltyLow
		default:
			panic(fmt.Sprintf("decision: unknown severity %q on flag %s", f.Severity, f.Code))
		}
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Classify maps a final score and flag set to a risk level and recommended
// action under the merchant's policy.
//
// MediumRiskThreshold is numerically the higher risk-level cutoff and is
// checked first; see domain.MerchantPolicy. DENY is evaluated before
// APPROVE: a score below the fraud threshold always denies, whatever the
// flags say.
func Classify(score float64, flags []domain.RiskFlag, policy domain.MerchantPolicy) (domain.RiskLevel, domain.Recommendation) {
	var level domain.RiskLevel
	switch {
	case score >= policy.MediumRiskThreshold:
		level = domain.RiskLow
	case score >= policy.HighRiskThreshold:
		level = domain.RiskMedium
	default:
		level = domain.RiskHigh
	}

	var rec domain.Recommendation
	switch {
	case score < policy.FraudThreshold:
		rec = domain.RecommendDeny
	case score >= policy.AutoApproveThreshold && !domain.HasHighSeverity(flags):
		rec = domain.RecommendApprove
	default:
		rec = domain.RecommendReview
	}

	return level, rec
}
