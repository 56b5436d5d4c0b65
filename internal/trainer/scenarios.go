package trainer

import (
	"fmt"

	"github.com/opensource-commerce/kestrel/internal/domain"
	"github.com/opensource-commerce/kestrel/internal/features"
	"github.com/opensource-commerce/kestrel/internal/predict"
)

// Scenario is a hand-built smoke case run against a freshly trained model
// before the artifact is accepted.
type Scenario struct {
	Name string
	Bag  *features.Bag

	// Check returns an error when the model's probability for the scenario
	// falls outside the expected range.
	Check func(p float64) error
}

// ScenarioResult records one scenario evaluation.
type ScenarioResult struct {
	Name        string  `json:"name"`
	Probability float64 `json:"probability"`
	Passed      bool    `json:"passed"`
	Detail      string  `json:"detail,omitempty"`
}

// Scenarios returns the standard validation set: an obviously legitimate
// return, an ambiguous first order, and two abuse patterns.
func Scenarios() []Scenario {
	return []Scenario{
		{
			Name: "loyal buyer returns clothing for size",
			Bag: &features.Bag{
				BuyerReturnRate:     0.05,
				BuyerTotalOrders:    60,
				BuyerTotalReturns:   3,
				BuyerAvgReviewScore: 4.6,
				BuyerAccountAgeDays: 900,
				BuyerTotalSpend:     8000,
				ProductReturnRate:   0.28,
				ProductCategoryRisk: domain.CategoryRiskScore(domain.CategoryClothing),
				ProductPrice:        80,
				ProductPriceTier:    domain.PriceTierFor(80),
				DaysSinceOrder:      5,
				OrderAmount:         80,
				ReturnReason:        domain.ReasonSizeIssue,
				RequestHour:         14,
				RequestDayOfWeek:    2,
			},
			Check: func(p float64) error {
				if p < 0.5 {
					return fmt.Errorf("expected eligible, got probability %.3f", p)
				}
				return nil
			},
		},
		{
			Name: "heavy returner changes mind near window end",
			Bag: &features.Bag{
				BuyerReturnRate:     0.45,
				BuyerTotalOrders:    15,
				BuyerTotalReturns:   7,
				BuyerAvgReviewScore: 2.2,
				BuyerAccountAgeDays: 50,
				BuyerTotalSpend:     1400,
				ProductReturnRate:   0.28,
				ProductCategoryRisk: domain.CategoryRiskScore(domain.CategoryClothing),
				ProductPrice:        180,
				ProductPriceTier:    domain.PriceTierFor(180),
				DaysSinceOrder:      24,
				OrderAmount:         180,
				ReturnReason:        domain.ReasonChangedMind,
				RequestHour:         19,
				RequestDayOfWeek:    3,
			},
			Check: func(p float64) error {
				if p <= 0.15 || p >= 0.92 {
					return fmt.Errorf("expected ambiguous probability, got %.3f", p)
				}
				return nil
			},
		},
		{
			Name: "serial returner files at the deadline",
			Bag: &features.Bag{
				BuyerReturnRate:     0.55,
				BuyerTotalOrders:    20,
				BuyerTotalReturns:   11,
				BuyerAvgReviewScore: 1.8,
				BuyerAccountAgeDays: 45,
				BuyerTotalSpend:     900,
				ProductReturnRate:   0.28,
				ProductCategoryRisk: domain.CategoryRiskScore(domain.CategoryClothing),
				ProductPrice:        120,
				ProductPriceTier:    domain.PriceTierFor(120),
				DaysSinceOrder:      29,
				OrderAmount:         120,
				ReturnReason:        domain.ReasonChangedMind,
				RequestHour:         2,
				RequestDayOfWeek:    6,
			},
			Check: func(p float64) error {
				if p >= 0.5 {
					return fmt.Errorf("expected not eligible, got probability %.3f", p)
				}
				return nil
			},
		},
		{
			Name: "fresh account returns high value item overnight",
			Bag: &features.Bag{
				BuyerReturnRate:     0.7,
				BuyerTotalOrders:    3,
				BuyerTotalReturns:   2,
				BuyerAvgReviewScore: 1.2,
				BuyerAccountAgeDays: 7,
				BuyerTotalSpend:     2500,
				ProductReturnRate:   0.12,
				ProductCategoryRisk: domain.CategoryRiskScore(domain.CategoryOther),
				ProductPrice:        1100,
				ProductPriceTier:    domain.PriceTierFor(1100),
				DaysSinceOrder:      1,
				OrderAmount:         1100,
				ReturnReason:        domain.ReasonOther,
				RequestHour:         3,
				RequestDayOfWeek:    0,
			},
			Check: func(p float64) error {
				if p >= 0.5 {
					return fmt.Errorf("expected not eligible, got probability %.3f", p)
				}
				return nil
			},
		},
	}
}

// ValidateScenarios runs every scenario against the artifact. The returned
// error is non-nil when any scenario fails; results carry per-case detail
// either way.
func ValidateScenarios(art *predict.Artifact) ([]ScenarioResult, error) {
	var failed int
	results := make([]ScenarioResult, 0, 4)
	for _, sc := range Scenarios() {
		p := Proba(art, features.Extract(sc.Bag))
		res := ScenarioResult{Name: sc.Name, Probability: p, Passed: true}
		if err := sc.Check(p); err != nil {
			res.Passed = false
			res.Detail = err.Error()
			failed++
		}
		results = append(results, res)
	}
	if failed > 0 {
		return results, fmt.Errorf("%d of %d validation scenarios failed", failed, len(results))
	}
	return results, nil
}
