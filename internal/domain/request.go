package domain

import (
	"fmt"
	"time"
)

// ReturnReason is the buyer-stated reason for a return request.
type ReturnReason string

const (
	ReasonSizeIssue         ReturnReason = "size_issue"
	ReasonDefective         ReturnReason = "defective"
	ReasonNotAsDescribed    ReturnReason = "not_as_described"
	ReasonChangedMind       ReturnReason = "changed_mind"
	ReasonArrivedLate       ReturnReason = "arrived_late"
	ReasonDamagedInShipping ReturnReason = "damaged_in_shipping"
	ReasonWrongItem         ReturnReason = "wrong_item"
	ReasonOther             ReturnReason = "other"
)

// KnownReasons lists every accepted return reason.
var KnownReasons = []ReturnReason{
	ReasonSizeIssue,
	ReasonDefective,
	ReasonNotAsDescribed,
	ReasonChangedMind,
	ReasonArrivedLate,
	ReasonDamagedInShipping,
	ReasonWrongItem,
	ReasonOther,
}

// Valid reports whether the reason is one of the known values.
func (r ReturnReason) Valid() bool {
	for _, k := range KnownReasons {
		if r == k {
			return true
		}
	}
	return false
}

// ScoreRequest is the API request payload for return eligibility scoring.
// Identifiers are external IDs from the merchant's own system.
type ScoreRequest struct {
	BuyerID       string       `json:"buyer_id"`
	ProductID     string       `json:"product_id"`
	OrderID       string       `json:"order_id"`
	OrderDate     time.Time    `json:"order_date"`
	OrderAmount   float64      `json:"order_amount"`
	ReturnReason  ReturnReason `json:"return_reason"`
	ReasonDetails string       `json:"reason_details,omitempty"`
}

// Validate checks the request shape at the API boundary.
// The scoring engine assumes only validated input.
func (r *ScoreRequest) Validate() error {
	if r.BuyerID == "" {
		return fmt.Errorf("%w: buyer_id is required", ErrInvalidRequest)
	}
	if r.ProductID == "" {
		return fmt.Errorf("%w: product_id is required", ErrInvalidRequest)
	}
	if r.OrderID == "" {
		return fmt.Errorf("%w: order_id is required", ErrInvalidRequest)
	}
	if r.OrderDate.IsZero() {
		return fmt.Errorf("%w: order_date is required", ErrInvalidRequest)
	}
	if r.OrderAmount <= 0 {
		return fmt.Errorf("%w: order_amount must be positive", ErrInvalidRequest)
	}
	if !r.ReturnReason.Valid() {
		return fmt.Errorf("%w: unknown return_reason %q", ErrInvalidRequest, r.ReturnReason)
	}
	return nil
}
