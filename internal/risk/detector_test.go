package risk

import (
	"testing"
	"time"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// cleanBuyer returns a buyer that trips no heuristics.
func cleanBuyer() *domain.Buyer {
	created := testNow.AddDate(-1, 0, 0)
	return &domain.Buyer{
		ID:               "buyer-1",
		TotalOrders:      20,
		TotalReturns:     1,
		TotalReviews:     5,
		AvgReviewScore:   4.2,
		AccountCreatedAt: &created,
	}
}

func cleanProduct() *domain.Product {
	return &domain.Product{
		ID:       "product-1",
		Category: domain.CategoryHome,
		Price:    80,
	}
}

func cleanRequest() *domain.ScoreRequest {
	return &domain.ScoreRequest{
		OrderAmount:  80,
		ReturnReason: domain.ReasonDefective,
	}
}

func detect(buyer *domain.Buyer, product *domain.Product, req *domain.ScoreRequest, days, recent int) []domain.RiskFlag {
	return Detect(testNow, buyer, product, req, days, domain.DefaultPolicy(), recent)
}

func hasFlag(flags []domain.RiskFlag, code string) bool {
	for _, f := range flags {
		if f.Code == code {
			return true
		}
	}
	return false
}

func TestDetectCleanRequest(t *testing.T) {
	flags := detect(cleanBuyer(), cleanProduct(), cleanRequest(), 5, 0)
	if len(flags) != 0 {
		t.Errorf("expected no flags, got %v", flags)
	}
}

func TestDetectReturnRateFlags(t *testing.T) {
	t.Run("High", func(t *testing.T) {
		buyer := cleanBuyer()
		buyer.TotalReturns = 8 // 40%
		flags := detect(buyer, cleanProduct(), cleanRequest(), 5, 0)
		if !hasFlag(flags, domain.FlagHighReturnRate) {
			t.Error("expected HIGH_RETURN_RATE")
		}
		if hasFlag(flags, domain.FlagElevatedReturnRate) {
			t.Error("HIGH_RETURN_RATE must suppress ELEVATED_RETURN_RATE")
		}
	})

	t.Run("Elevated", func(t *testing.T) {
		buyer := cleanBuyer()
		buyer.TotalReturns = 5 // 25%
		flags := detect(buyer, cleanProduct(), cleanRequest(), 5, 0)
		if !hasFlag(flags, domain.FlagElevatedReturnRate) {
			t.Error("expected ELEVATED_RETURN_RATE")
		}
		if hasFlag(flags, domain.FlagHighReturnRate) {
			t.Error("did not expect HIGH_RETURN_RATE at 25%")
		}
	})

	t.Run("BoundaryNotInclusive", func(t *testing.T) {
		buyer := cleanBuyer()
		buyer.TotalOrders = 10
		buyer.TotalReturns = 3 // exactly 30%
		flags := detect(buyer, cleanProduct(), cleanRequest(), 5, 0)
		if hasFlag(flags, domain.FlagHighReturnRate) {
			t.Error("exactly 30% must not trip HIGH_RETURN_RATE")
		}
		if !hasFlag(flags, domain.FlagElevatedReturnRate) {
			t.Error("exactly 30% should trip ELEVATED_RETURN_RATE")
		}
	})
}

func TestDetectNewAccount(t *testing.T) {
	buyer := cleanBuyer()
	created := testNow.AddDate(0, 0, -10)
	buyer.AccountCreatedAt = &created

	flags := detect(buyer, cleanProduct(), cleanRequest(), 5, 0)
	if !hasFlag(flags, domain.FlagNewAccount) {
		t.Error("expected NEW_ACCOUNT for a 10 day old account")
	}

	// A first-seen buyer has no creation date; age 0 counts as new.
	buyer.AccountCreatedAt = nil
	flags = detect(buyer, cleanProduct(), cleanRequest(), 5, 0)
	if !hasFlag(flags, domain.FlagNewAccount) {
		t.Error("expected NEW_ACCOUNT for a buyer with unknown account age")
	}
}

func TestDetectReviewFlags(t *testing.T) {
	t.Run("NoReviews", func(t *testing.T) {
		buyer := cleanBuyer()
		buyer.TotalReviews = 0
		buyer.AvgReviewScore = 0
		flags := detect(buyer, cleanProduct(), cleanRequest(), 5, 0)
		if !hasFlag(flags, domain.FlagNoReviews) {
			t.Error("expected NO_REVIEWS for an active buyer with no reviews")
		}
	})

	t.Run("NoReviewsNeedsOrderHistory", func(t *testing.T) {
		buyer := cleanBuyer()
		buyer.TotalOrders = 3
		buyer.TotalReturns = 0
		buyer.TotalReviews = 0
		buyer.AvgReviewScore = 0
		flags := detect(buyer, cleanProduct(), cleanRequest(), 5, 0)
		if hasFlag(flags, domain.FlagNoReviews) {
			t.Error("few orders must not trip NO_REVIEWS")
		}
	})

	t.Run("LowScore", func(t *testing.T) {
		buyer := cleanBuyer()
		buyer.AvgReviewScore = 1.5
		flags := detect(buyer, cleanProduct(), cleanRequest(), 5, 0)
		if !hasFlag(flags, domain.FlagLowReviewScore) {
			t.Error("expected LOW_REVIEW_SCORE")
		}
	})
}

func TestDetectHighValueItem(t *testing.T) {
	req := cleanRequest()
	req.OrderAmount = 750
	flags := detect(cleanBuyer(), cleanProduct(), req, 5, 0)
	if !hasFlag(flags, domain.FlagHighValueItem) {
		t.Error("expected HIGH_VALUE_ITEM above $500")
	}

	req.OrderAmount = 500 // boundary excluded
	flags = detect(cleanBuyer(), cleanProduct(), req, 5, 0)
	if hasFlag(flags, domain.FlagHighValueItem) {
		t.Error("exactly $500 must not trip HIGH_VALUE_ITEM")
	}
}

func TestDetectWindowFlags(t *testing.T) {
	t.Run("Outside", func(t *testing.T) {
		flags := detect(cleanBuyer(), cleanProduct(), cleanRequest(), 35, 0)
		if !hasFlag(flags, domain.FlagOutsideReturnWindow) {
			t.Error("expected OUTSIDE_RETURN_WINDOW at day 35 of a 30 day window")
		}
		if hasFlag(flags, domain.FlagNearWindowEnd) {
			t.Error("OUTSIDE_RETURN_WINDOW must suppress NEAR_WINDOW_END")
		}
	})

	t.Run("NearEnd", func(t *testing.T) {
		flags := detect(cleanBuyer(), cleanProduct(), cleanRequest(), 27, 0)
		if !hasFlag(flags, domain.FlagNearWindowEnd) {
			t.Error("expected NEAR_WINDOW_END at day 27 of a 30 day window")
		}
		if hasFlag(flags, domain.FlagOutsideReturnWindow) {
			t.Error("did not expect OUTSIDE_RETURN_WINDOW within the window")
		}
	})

	t.Run("CustomWindow", func(t *testing.T) {
		product := cleanProduct()
		product.CustomReturnWindow = 14
		flags := detect(cleanBuyer(), product, cleanRequest(), 20, 0)
		if !hasFlag(flags, domain.FlagOutsideReturnWindow) {
			t.Error("expected OUTSIDE_RETURN_WINDOW under the product's 14 day window")
		}
	})
}

func TestDetectFrequentMindChanges(t *testing.T) {
	buyer := cleanBuyer()
	buyer.TotalOrders = 10
	buyer.TotalReturns = 2 // 20%

	req := cleanRequest()
	req.ReturnReason = domain.ReasonChangedMind

	flags := detect(buyer, cleanProduct(), req, 5, 0)
	if !hasFlag(flags, domain.FlagFrequentMindChanges) {
		t.Error("expected FREQUENT_MIND_CHANGES")
	}

	// Same rate with a different reason does not fire.
	req.ReturnReason = domain.ReasonDefective
	flags = detect(buyer, cleanProduct(), req, 5, 0)
	if hasFlag(flags, domain.FlagFrequentMindChanges) {
		t.Error("FREQUENT_MIND_CHANGES requires the changed_mind reason")
	}
}

func TestDetectMultipleRecentReturns(t *testing.T) {
	flags := detect(cleanBuyer(), cleanProduct(), cleanRequest(), 5, 3)
	if !hasFlag(flags, domain.FlagMultipleRecentReturns) {
		t.Error("expected MULTIPLE_RECENT_RETURNS at 3 returns this month")
	}

	flags = detect(cleanBuyer(), cleanProduct(), cleanRequest(), 5, 2)
	if hasFlag(flags, domain.FlagMultipleRecentReturns) {
		t.Error("2 returns this month must not trip MULTIPLE_RECENT_RETURNS")
	}
}

func TestDetectSeverities(t *testing.T) {
	buyer := cleanBuyer()
	buyer.TotalReturns = 8 // 40%
	flags := detect(buyer, cleanProduct(), cleanRequest(), 35, 3)

	want := map[string]domain.Severity{
		domain.FlagHighReturnRate:        domain.SeverityHigh,
		domain.FlagOutsideReturnWindow:   domain.SeverityHigh,
		domain.FlagMultipleRecentReturns: domain.SeverityHigh,
	}
	for _, f := range flags {
		if sev, ok := want[f.Code]; ok && f.Severity != sev {
			t.Errorf("flag %s severity = %q, want %q", f.Code, f.Severity, sev)
		}
	}
}
