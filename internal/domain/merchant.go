package domain

import (
	"fmt"
	"time"
)

// MerchantPolicy holds the per-merchant thresholds that drive classification.
//
// Note on the risk-level cut points: MediumRiskThreshold is numerically the
// higher cutoff and is checked first (score >= medium => low risk). The
// naming is historical; keep the comparison order.
type MerchantPolicy struct {
	DefaultReturnWindow  int     `json:"defaultReturnWindow"`  // days
	FraudThreshold       float64 `json:"fraudThreshold"`       // score below => deny
	AutoApproveThreshold float64 `json:"autoApproveThreshold"` // score above => approve
	MediumRiskThreshold  float64 `json:"mediumRiskThreshold"`
	HighRiskThreshold    float64 `json:"highRiskThreshold"`
}

// DefaultPolicy returns the thresholds applied to newly seen merchants.
func DefaultPolicy() MerchantPolicy {
	return MerchantPolicy{
		DefaultReturnWindow:  30,
		FraudThreshold:       30.0,
		AutoApproveThreshold: 70.0,
		MediumRiskThreshold:  60.0,
		HighRiskThreshold:    30.0,
	}
}

// Validate checks that the policy values are usable.
func (p MerchantPolicy) Validate() error {
	if p.DefaultReturnWindow <= 0 {
		return fmt.Errorf("%w: defaultReturnWindow must be positive", ErrInvalidRequest)
	}
	if p.FraudThreshold < 0 || p.FraudThreshold > 100 {
		return fmt.Errorf("%w: fraudThreshold must be in [0,100]", ErrInvalidRequest)
	}
	if p.AutoApproveThreshold < 0 || p.AutoApproveThreshold > 100 {
		return fmt.Errorf("%w: autoApproveThreshold must be in [0,100]", ErrInvalidRequest)
	}
	if p.HighRiskThreshold > p.MediumRiskThreshold {
		return fmt.Errorf("%w: highRiskThreshold must not exceed mediumRiskThreshold", ErrInvalidRequest)
	}
	return nil
}

// Merchant is the scoring context resolved before the engine is invoked.
// Authentication happens upstream; the engine only needs the policy.
type Merchant struct {
	ID        string         `json:"id"`
	Policy    MerchantPolicy `json:"policy"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}
