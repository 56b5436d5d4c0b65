// Package risk evaluates the built-in battery of fraud and abuse heuristics
// against buyer, product, and request state.
package risk

import (
	"fmt"
	"time"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

// Detection thresholds. These are intentionally not merchant-configurable;
// merchants tune outcomes through policy thresholds, not detector internals.
const (
	highReturnRate     = 0.3
	elevatedReturnRate = 0.2
	newAccountDays     = 30
	reviewedOrdersMin  = 5
	lowReviewScore     = 2.0
	highValueAmount    = 500.0
	nearWindowFraction = 0.8
	mindChangeRate     = 0.15
	recentReturnsMax   = 3
)

// Detect runs every heuristic and returns the flags that fired. Checks are
// independent and order-insensitive, except the two mutually exclusive pairs:
// HIGH_RETURN_RATE suppresses ELEVATED_RETURN_RATE, and OUTSIDE_RETURN_WINDOW
// suppresses NEAR_WINDOW_END.
//
// daysSinceOrder must already be floored at 0 for future-dated orders; the
// caller owns that normalization.
func Detect(
	now time.Time,
	buyer *domain.Buyer,
	product *domain.Product,
	req *domain.ScoreRequest,
	daysSinceOrder int,
	policy domain.MerchantPolicy,
	recentReturnCount int,
) []domain.RiskFlag {
	flags := make([]domain.RiskFlag, 0, 4)

	returnRate := buyer.ReturnRate()
	switch {
	case returnRate > highReturnRate:
		flags = append(flags, domain.RiskFlag{
			Code:        domain.FlagHighReturnRate,
			Description: fmt.Sprintf("Buyer has %.1f%% return rate", returnRate*100),
			Severity:    domain.SeverityHigh,
		})
	case returnRate > elevatedReturnRate:
		flags = append(flags, domain.RiskFlag{
			Code:        domain.FlagElevatedReturnRate,
			Description: fmt.Sprintf("Buyer has %.1f%% return rate", returnRate*100),
			Severity:    domain.SeverityMedium,
		})
	}

	// Unknown creation dates count as age 0: a first-seen buyer is a new
	// account until history says otherwise.
	if buyer.AccountAgeDays(now) < newAccountDays {
		flags = append(flags, domain.RiskFlag{
			Code:        domain.FlagNewAccount,
			Description: "Account is less than 30 days old",
			Severity:    domain.SeverityMedium,
		})
	}

	if buyer.TotalOrders > reviewedOrdersMin && buyer.TotalReviews == 0 {
		flags = append(flags, domain.RiskFlag{
			Code:        domain.FlagNoReviews,
			Description: "Buyer has never left a review",
			Severity:    domain.SeverityLow,
		})
	}

	if buyer.TotalReviews > 0 && buyer.AvgReviewScore < lowReviewScore {
		flags = append(flags, domain.RiskFlag{
			Code:        domain.FlagLowReviewScore,
			Description: "Buyer gives consistently low reviews",
			Severity:    domain.SeverityMedium,
		})
	}

	if req.OrderAmount > highValueAmount {
		flags = append(flags, domain.RiskFlag{
			Code:        domain.FlagHighValueItem,
			Description: fmt.Sprintf("Order value $%.2f exceeds $500", req.OrderAmount),
			Severity:    domain.SeverityMedium,
		})
	}

	window := product.EffectiveReturnWindow(policy.DefaultReturnWindow)
	switch {
	case daysSinceOrder > window:
		flags = append(flags, domain.RiskFlag{
			Code:        domain.FlagOutsideReturnWindow,
			Description: fmt.Sprintf("Request is %d days past return window", daysSinceOrder-window),
			Severity:    domain.SeverityHigh,
		})
	case float64(daysSinceOrder) > nearWindowFraction*float64(window):
		flags = append(flags, domain.RiskFlag{
			Code:        domain.FlagNearWindowEnd,
			Description: "Request near end of return window",
			Severity:    domain.SeverityLow,
		})
	}

	if req.ReturnReason == domain.ReasonChangedMind && returnRate > mindChangeRate {
		flags = append(flags, domain.RiskFlag{
			Code:        domain.FlagFrequentMindChanges,
			Description: "Buyer frequently returns items due to changed mind",
			Severity:    domain.SeverityMedium,
		})
	}

	if recentReturnCount >= recentReturnsMax {
		flags = append(flags, domain.RiskFlag{
			Code:        domain.FlagMultipleRecentReturns,
			Description: fmt.Sprintf("%d returns this month", recentReturnCount),
			Severity:    domain.SeverityHigh,
		})
	}

	return flags
}
