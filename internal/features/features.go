// Package features converts raw scoring attributes into the fixed-order
// numeric vector consumed by the probability model.
package features

import (
	"github.com/opensource-commerce/kestrel/internal/domain"
)

// VectorLen is the feature vector length. The length and ordering are a
// contract shared with the trained model artifact: a model trained against a
// different contract must carry a different version.
const VectorLen = 15

// Names lists the vector fields in contract order.
var Names = []string{
	"buyer_return_rate",
	"buyer_total_orders",
	"buyer_total_returns",
	"buyer_avg_review_score",
	"buyer_account_age_days",
	"buyer_total_spend",
	"product_return_rate",
	"product_category_risk",
	"product_price",
	"days_since_order",
	"order_amount",
	"request_hour",
	"request_day_of_week",
	"price_tier_code",
	"return_reason_code",
}

// priceTierCodes maps price tiers to their integer encoding.
// Unknown tiers fall back to the medium code.
var priceTierCodes = map[domain.PriceTier]float64{
	domain.TierLowPrice: 0,
	domain.TierMedPrice: 1,
	domain.TierHigh:     2,
	domain.TierPremium:  3,
}

// returnReasonCodes maps return reasons to their integer encoding.
// Unknown reasons fall back to the "other" code.
var returnReasonCodes = map[domain.ReturnReason]float64{
	domain.ReasonSizeIssue:         0,
	domain.ReasonDefective:         1,
	domain.ReasonNotAsDescribed:    2,
	domain.ReasonChangedMind:       3,
	domain.ReasonArrivedLate:       4,
	domain.ReasonDamagedInShipping: 5,
	domain.ReasonWrongItem:         6,
	domain.ReasonOther:             7,
}

const (
	defaultPriceTierCode    = 1 // medium
	defaultReturnReasonCode = 7 // other
)

// Bag is the unvalidated attribute set gathered for one scoring call.
// Missing values are zero; extraction never errors on malformed input.
type Bag struct {
	BuyerReturnRate     float64
	BuyerTotalOrders    float64
	BuyerTotalReturns   float64
	BuyerAvgReviewScore float64
	BuyerAccountAgeDays float64
	BuyerTotalSpend     float64

	ProductReturnRate   float64
	ProductCategoryRisk float64
	ProductPrice        float64
	ProductPriceTier    domain.PriceTier

	DaysSinceOrder float64
	OrderAmount    float64
	ReturnReason   domain.ReturnReason

	RequestHour      float64
	RequestDayOfWeek float64
}

// Vector is the fixed-order numeric encoding of a Bag.
type Vector [VectorLen]float64

// Extract encodes a bag into the contract vector.
func Extract(bag *Bag) Vector {
	return Vector{
		bag.BuyerReturnRate,
		bag.BuyerTotalOrders,
		bag.BuyerTotalReturns,
		bag.BuyerAvgReviewScore,
		bag.BuyerAccountAgeDays,
		bag.BuyerTotalSpend,
		bag.ProductReturnRate,
		bag.ProductCategoryRisk,
		bag.ProductPrice,
		bag.DaysSinceOrder,
		bag.OrderAmount,
		bag.RequestHour,
		bag.RequestDayOfWeek,
		PriceTierCode(bag.ProductPriceTier),
		ReturnReasonCode(bag.ReturnReason),
	}
}

// ExtractBatch encodes multiple bags, one row per bag.
func ExtractBatch(bags []*Bag) []Vector {
	out := make([]Vector, len(bags))
	for i, b := range bags {
		out[i] = Extract(b)
	}
	return out
}

// PriceTierCode encodes a price tier, defaulting unknown values to medium.
func PriceTierCode(t domain.PriceTier) float64 {
	if code, ok := priceTierCodes[t]; ok {
		return code
	}
	return defaultPriceTierCode
}

// ReturnReasonCode encodes a return reason, defaulting unknown values to
// "other".
func ReturnReasonCode(r domain.ReturnReason) float64 {
	if code, ok := returnReasonCodes[r]; ok {
		return code
	}
	return defaultReturnReasonCode
}
