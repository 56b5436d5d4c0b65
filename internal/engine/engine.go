// Package engine orchestrates one return eligibility scoring call: aggregate
// resolution, feature extraction, prediction, flag detection, score
// adjustment, classification, and decision persistence, in that fixed order.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-commerce/kestrel/internal/decision"
	"github.com/opensource-commerce/kestrel/internal/domain"
	"github.com/opensource-commerce/kestrel/internal/features"
	"github.com/opensource-commerce/kestrel/internal/predict"
	"github.com/opensource-commerce/kestrel/internal/recency"
	"github.com/opensource-commerce/kestrel/internal/risk"
	"github.com/opensource-commerce/kestrel/internal/rules"
)

// ScoringEngine runs the scoring pipeline. The predictor is shared and
// read-only per call; everything else is request-scoped, so one engine is
// safe for concurrent use.
type ScoringEngine struct {
	repo      domain.Repository
	predictor *predict.Predictor
	flagRules *rules.Engine
	recent    recency.Getter
	bus       domain.EventBus
	now       func() time.Time
}

// New creates a scoring engine. flagRules, recent, and bus are optional; nil
// disables custom flag rules, recent-return detection, and event publishing
// respectively.
func New(repo domain.Repository, predictor *predict.Predictor, flagRules *rules.Engine, recent recency.Getter, bus domain.EventBus) *ScoringEngine {
	return &ScoringEngine{
		repo:      repo,
		predictor: predictor,
		flagRules: flagRules,
		recent:    recent,
		bus:       bus,
		now:       time.Now,
	}
}

// Score runs the full pipeline for one validated request and persists one
// new decision record. Persistence failure fails the call; a decision that
// was never recorded must not be acted on.
func (e *ScoringEngine) Score(ctx context.Context, merchant *domain.Merchant, req *domain.ScoreRequest) (*domain.ScoreResponse, error) {
	buyer, err := e.repo.GetOrCreateBuyer(ctx, merchant.ID, req.BuyerID)
	if err != nil {
		return nil, fmt.Errorf("resolve buyer: %w", err)
	}
	product, err := e.repo.GetOrCreateProduct(ctx, merchant.ID, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("resolve product: %w", err)
	}

	now := e.now().UTC()

	// Raw days may be negative for future-dated orders; window math floors
	// at zero but the raw value is surfaced to the caller.
	rawDays := int(now.Sub(req.OrderDate).Hours() / 24)
	days := rawDays
	if days < 0 {
		days = 0
	}

	policy := merchant.Policy
	window := product.EffectiveReturnWindow(policy.DefaultReturnWindow)
	withinWindow := days <= window

	var recentReturns int64
	if e.recent != nil {
		recentReturns, err = e.recent(ctx, merchant.ID, buyer.ID)
		if err != nil {
			slog.Warn("recent return count unavailable, skipping frequency check",
				"merchant_id", merchant.ID,
				"buyer_id", buyer.ID,
				"error", err,
			)
			recentReturns = 0
		}
	}

	bag := &features.Bag{
		BuyerReturnRate:     buyer.ReturnRate(),
		BuyerTotalOrders:    float64(buyer.TotalOrders),
		BuyerTotalReturns:   float64(buyer.TotalReturns),
		BuyerAvgReviewScore: buyer.AvgReviewScore,
		BuyerAccountAgeDays: float64(buyer.AccountAgeDays(now)),
		BuyerTotalSpend:     buyer.TotalSpend,

		ProductReturnRate:   product.ReturnRate(),
		ProductCategoryRisk: product.CategoryRisk(),
		ProductPrice:        product.Price,
		ProductPriceTier:    product.PriceTier,

		DaysSinceOrder: float64(days),
		OrderAmount:    req.OrderAmount,
		ReturnReason:   req.ReturnReason,

		RequestHour:      float64(now.Hour()),
		RequestDayOfWeek: float64(now.Weekday()),
	}

	base := e.predictor.Predict(bag)

	flags := risk.Detect(now, buyer, product, req, days, policy, int(recentReturns))

	if e.flagRules != nil {
		custom := e.flagRules.EvaluateAll(ctx, merchant.ID, &rules.Input{
			Buyer:          buyer,
			Product:        product,
			Request:        req,
			DaysSinceOrder: days,
			AccountAgeDays: buyer.AccountAgeDays(now),
			RecentReturns:  recentReturns,
		})
		flags = append(flags, custom...)
	}

	finalScore := decision.Adjust(base.Score, flags, withinWindow)
	level, rec := decision.Classify(finalScore, flags, policy)

	d := &domain.Decision{
		ID:         uuid.New().String(),
		MerchantID: merchant.ID,
		BuyerID:    buyer.ID,
		ProductID:  product.ID,

		OrderID:       req.OrderID,
		OrderDate:     req.OrderDate,
		OrderAmount:   req.OrderAmount,
		Reason:        req.ReturnReason,
		ReasonDetails: req.ReasonDetails,

		Score:          finalScore,
		RiskLevel:      level,
		Flags:          flags,
		Confidence:     base.Confidence,
		Recommendation: rec,

		ReturnWindowDays: window,
		DaysSinceOrder:   rawDays,
		WithinWindow:     withinWindow,

		Status:    domain.DecisionReview,
		CreatedAt: now,
	}

	switch rec {
	case domain.RecommendApprove:
		d.Status = domain.DecisionApproved
		d.DecidedAt = &now
		d.DecidedBy = domain.DecidedBySystem
	case domain.RecommendDeny:
		d.Status = domain.DecisionDenied
		d.DecidedAt = &now
		d.DecidedBy = domain.DecidedBySystem
	}

	if err := e.repo.SaveDecision(ctx, merchant.ID, d); err != nil {
		return nil, fmt.Errorf("persist decision: %w", err)
	}

	e.publish(ctx, merchant.ID, d)

	slog.Info("return request scored",
		"merchant_id", merchant.ID,
		"request_id", d.ID,
		"order_id", d.OrderID,
		"score", d.Score,
		"risk_level", d.RiskLevel,
		"recommendation", d.Recommendation,
		"flags", len(d.Flags),
		"model_used", base.ModelUsed,
	)

	return d.ToResponse(buyer.ReturnRate()), nil
}

// publish emits scored and denied events. Publishing is best-effort; the
// decision is already persisted.
func (e *ScoringEngine) publish(ctx context.Context, merchantID string, d *domain.Decision) {
	if e.bus == nil {
		return
	}

	payload, err := json.Marshal(d)
	if err != nil {
		slog.Error("failed to marshal decision event", "error", err)
		return
	}

	if err := e.bus.Publish(ctx, merchantID, domain.TopicReturnScored, payload); err != nil {
		slog.Warn("failed to publish scored event", "request_id", d.ID, "error", err)
	}

	if d.Recommendation == domain.RecommendDeny {
		if err := e.bus.Publish(ctx, merchantID, domain.TopicReturnDenied, payload); err != nil {
			slog.Warn("failed to publish denied event", "request_id", d.ID, "error", err)
		}
	}
}
