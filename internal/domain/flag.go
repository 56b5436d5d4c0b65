package domain

// Severity ranks how strongly a risk flag should count against a request.
// The enumeration is closed: the score adjuster treats any other value as a
// programming error.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether s is one of the three known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// RiskFlag is one detected fraud/abuse indicator.
type RiskFlag struct {
	Code        string   `json:"code"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// Built-in risk flag codes.
const (
	FlagHighReturnRate        = "HIGH_RETURN_RATE"
	FlagElevatedReturnRate    = "ELEVATED_RETURN_RATE"
	FlagNewAccount            = "NEW_ACCOUNT"
	FlagNoReviews             = "NO_REVIEWS"
	FlagLowReviewScore        = "LOW_REVIEW_SCORE"
	FlagHighValueItem         = "HIGH_VALUE_ITEM"
	FlagOutsideReturnWindow   = "OUTSIDE_RETURN_WINDOW"
	FlagNearWindowEnd         = "NEAR_WINDOW_END"
	FlagFrequentMindChanges   = "FREQUENT_MIND_CHANGES"
	FlagMultipleRecentReturns = "MULTIPLE_RECENT_RETURNS"
)

// HasHighSeverity reports whether any flag in the set is high severity.
func HasHighSeverity(flags []RiskFlag) bool {
	for _, f := range flags {
		if f.Severity == SeverityHigh {
			return true
		}
	}
	return false
}
