package features

import (
	"testing"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

func TestExtractOrdering(t *testing.T) {
	bag := &Bag{
		BuyerReturnRate:     0.25,
		BuyerTotalOrders:    12,
		BuyerTotalReturns:   3,
		BuyerAvgReviewScore: 4.2,
		BuyerAccountAgeDays: 400,
		BuyerTotalSpend:     2500,
		ProductReturnRate:   0.1,
		ProductCategoryRisk: 0.7,
		ProductPrice:        79.99,
		ProductPriceTier:    domain.TierMedPrice,
		DaysSinceOrder:      9,
		OrderAmount:         79.99,
		ReturnReason:        domain.ReasonDefective,
		RequestHour:         14,
		RequestDayOfWeek:    2,
	}

	vec := Extract(bag)

	want := Vector{0.25, 12, 3, 4.2, 400, 2500, 0.1, 0.7, 79.99, 9, 79.99, 14, 2, 1, 1}
	if vec != want {
		t.Errorf("vector mismatch:\n got  %v\n want %v", vec, want)
	}
}

func TestVectorContract(t *testing.T) {
	if len(Names) != VectorLen {
		t.Fatalf("Names has %d entries, VectorLen is %d", len(Names), VectorLen)
	}

	seen := make(map[string]bool)
	for _, name := range Names {
		if seen[name] {
			t.Errorf("duplicate feature name %q", name)
		}
		seen[name] = true
	}
}

func TestPriceTierCode(t *testing.T) {
	cases := []struct {
		tier domain.PriceTier
		want float64
	}{
		{domain.TierLowPrice, 0},
		{domain.TierMedPrice, 1},
		{domain.TierHigh, 2},
		{domain.TierPremium, 3},
		{domain.PriceTier("bogus"), 1}, // unknown falls back to medium
		{domain.PriceTier(""), 1},
	}
	for _, tc := range cases {
		if got := PriceTierCode(tc.tier); got != tc.want {
			t.Errorf("PriceTierCode(%q) = %v, want %v", tc.tier, got, tc.want)
		}
	}
}

func TestReturnReasonCode(t *testing.T) {
	cases := []struct {
		reason domain.ReturnReason
		want   float64
	}{
		{domain.ReasonSizeIssue, 0},
		{domain.ReasonDefective, 1},
		{domain.ReasonNotAsDescribed, 2},
		{domain.ReasonChangedMind, 3},
		{domain.ReasonArrivedLate, 4},
		{domain.ReasonDamagedInShipping, 5},
		{domain.ReasonWrongItem, 6},
		{domain.ReasonOther, 7},
		{domain.ReturnReason("mystery"), 7}, // unknown falls back to other
	}
	for _, tc := range cases {
		if got := ReturnReasonCode(tc.reason); got != tc.want {
			t.Errorf("ReturnReasonCode(%q) = %v, want %v", tc.reason, got, tc.want)
		}
	}
}

func TestExtractBatch(t *testing.T) {
	bags := []*Bag{
		{OrderAmount: 10},
		{OrderAmount: 20},
		{OrderAmount: 30},
	}

	vecs := ExtractBatch(bags)
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	for i, v := range vecs {
		if v[10] != bags[i].OrderAmount {
			t.Errorf("row %d: order_amount = %v, want %v", i, v[10], bags[i].OrderAmount)
		}
	}
}

func TestExtractZeroBag(t *testing.T) {
	vec := Extract(&Bag{})

	// Zero bags still encode the fallback codes for the enum features.
	if vec[13] != defaultPriceTierCode {
		t.Errorf("price_tier_code = %v, want %v", vec[13], float64(defaultPriceTierCode))
	}
	if vec[14] != defaultReturnReasonCode {
		t.Errorf("return_reason_code = %v, want %v", vec[14], float64(defaultReturnReasonCode))
	}
}
