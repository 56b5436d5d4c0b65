package domain

import (
	"time"
)

// RiskLevel classifies the adjusted score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Recommendation is the engine's suggested action for a return request.
type Recommendation string

const (
	RecommendApprove Recommendation = "APPROVE"
	RecommendReview  Recommendation = "REVIEW"
	RecommendDeny    Recommendation = "DENY"
)

// DecisionStatus is the initial decision recorded with a scored request.
// APPROVE and DENY recommendations are decided by the system immediately;
// REVIEW stays open for a human.
type DecisionStatus string

const (
	DecisionApproved DecisionStatus = "approved"
	DecisionDenied   DecisionStatus = "denied"
	DecisionReview   DecisionStatus = "review"
)

// DecidedBySystem marks decisions made automatically by the engine.
const DecidedBySystem = "system"

// ScoreResult is the predictor's output before flag adjustment.
type ScoreResult struct {
	Score      float64 // [0,100]
	Confidence float64 // [0,1]
	ModelUsed  bool    // false when the rules fallback produced the score
}

// Decision is the persisted record of one scoring call. Records are
// immutable: rescoring the same order creates a new record.
type Decision struct {
	ID         string `json:"id"`
	MerchantID string `json:"merchantId"`
	BuyerID    string `json:"buyerId"`   // internal buyer aggregate ID
	ProductID  string `json:"productId"` // internal product aggregate ID

	// Order context
	OrderID       string       `json:"orderId"`
	OrderDate     time.Time    `json:"orderDate"`
	OrderAmount   float64      `json:"orderAmount"`
	Reason        ReturnReason `json:"reason"`
	ReasonDetails string       `json:"reasonDetails,omitempty"`

	// Scoring results
	Score          float64        `json:"score"`
	RiskLevel      RiskLevel      `json:"riskLevel"`
	Flags          []RiskFlag     `json:"flags"`
	Confidence     float64        `json:"confidence"`
	Recommendation Recommendation `json:"recommendation"`

	// Window context
	ReturnWindowDays int  `json:"returnWindowDays"`
	DaysSinceOrder   int  `json:"daysSinceOrder"`
	WithinWindow     bool `json:"withinWindow"`

	// Initial decision
	Status    DecisionStatus `json:"status"`
	DecidedAt *time.Time     `json:"decidedAt,omitempty"`
	DecidedBy string         `json:"decidedBy,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// ScoreResponse is the API response for a scoring call.
type ScoreResponse struct {
	Score          float64        `json:"score"`
	RiskLevel      RiskLevel      `json:"risk_level"`
	Recommendation Recommendation `json:"recommendation"`
	RiskFlags      []RiskFlag     `json:"risk_flags"`

	ReturnWindowDays int     `json:"return_window_days"`
	Confidence       float64 `json:"confidence"`

	// Caller context
	BuyerReturnRate    float64 `json:"buyer_return_rate"` // percent
	DaysSinceOrder     int     `json:"days_since_order"`
	WithinReturnWindow bool    `json:"within_return_window"`

	RequestID string `json:"request_id"`
}

// ToResponse converts a persisted decision to the API response shape.
func (d *Decision) ToResponse(buyerReturnRate float64) *ScoreResponse {
	flags := d.Flags
	if flags == nil {
		flags = []RiskFlag{}
	}
	return &ScoreResponse{
		Score:              round2(d.Score),
		RiskLevel:          d.RiskLevel,
		Recommendation:     d.Recommendation,
		RiskFlags:          flags,
		ReturnWindowDays:   d.ReturnWindowDays,
		Confidence:         round2(d.Confidence),
		BuyerReturnRate:    round2(buyerReturnRate * 100),
		DaysSinceOrder:     d.DaysSinceOrder,
		WithinReturnWindow: d.WithinWindow,
		RequestID:          d.ID,
	}
}

// DashboardStats summarizes a merchant's return activity.
type DashboardStats struct {
	TotalReturns    int64   `json:"totalReturns"`
	ApprovedReturns int64   `json:"approvedReturns"`
	DeniedReturns   int64   `json:"deniedReturns"`
	PendingReturns  int64   `json:"pendingReturns"`
	ApprovalRate    float64 `json:"approvalRate"` // percent of decided
	AvgScore        float64 `json:"avgScore"`

	TotalBuyers    int64 `json:"totalBuyers"`
	HighRiskBuyers int64 `json:"highRiskBuyers"` // return rate > 0.3

	TotalProducts      int64 `json:"totalProducts"`
	HighReturnProducts int64 `json:"highReturnProducts"` // return rate > 0.2

	ReturnsThisWeek int64 `json:"returnsThisWeek"`
	ReturnsLastWeek int64 `json:"returnsLastWeek"`
}

func round2(v float64) float64 {
	if v < 0 {
		return float64(int64(v*100-0.5)) / 100
	}
	return float64(int64(v*100+0.5)) / 100
}
