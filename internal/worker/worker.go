// Package worker provides async scoring of queued return requests.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-commerce/kestrel/internal/domain"
	"github.com/opensource-commerce/kestrel/internal/engine"
)

// Worker consumes return.requested events from the EventBus and runs them
// through the scoring engine. Scored and denied events are published by the
// engine itself.
type Worker struct {
	bus    domain.EventBus
	repo   domain.Repository
	engine *engine.ScoringEngine

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// MerchantIDs is the list of merchants to process (empty = global worker)
	MerchantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, eng *engine.ScoringEngine) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		engine: eng,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing messages for the given merchants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.MerchantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, merchantID := range cfg.MerchantIDs {
		if err := w.startMerchantWorker(merchantID); err != nil {
			slog.Error("failed to start worker for merchant",
				"merchant_id", merchantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"merchant_count", len(cfg.MerchantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all merchants. The bus
// routes every merchant's requests to the global subscription key.
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.GlobalMerchantKey, domain.TopicReturnRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startMerchantWorker starts a worker for a specific merchant.
func (w *Worker) startMerchantWorker(merchantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, merchantID, domain.TopicReturnRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.processRequest(ctx, merchantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("merchant worker started",
		"merchant_id", merchantID,
		"topic", domain.TopicReturnRequested,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processRequest(ctx, msg.MerchantID, msg)
}

// RequestMessage is the message payload for queued scoring.
type RequestMessage struct {
	MerchantID string              `json:"merchantId"`
	Request    domain.ScoreRequest `json:"request"`
}

// processRequest scores one queued return request.
func (w *Worker) processRequest(ctx context.Context, merchantID string, msg *domain.Message) error {
	start := time.Now()

	var reqMsg RequestMessage
	if err := json.Unmarshal(msg.Payload, &reqMsg); err != nil {
		slog.Error("failed to parse return request message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message merchant if provided
	if reqMsg.MerchantID != "" {
		merchantID = reqMsg.MerchantID
	}

	if err := reqMsg.Request.Validate(); err != nil {
		slog.Error("invalid queued return request",
			"message_id", msg.ID,
			"merchant_id", merchantID,
			"error", err,
		)
		return err
	}

	merchant, err := w.repo.GetOrCreateMerchant(ctx, merchantID)
	if err != nil {
		slog.Error("failed to resolve merchant",
			"merchant_id", merchantID,
			"error", err,
		)
		return err
	}

	resp, err := w.engine.Score(ctx, merchant, &reqMsg.Request)
	if err != nil {
		slog.Error("scoring failed",
			"merchant_id", merchantID,
			"order_id", reqMsg.Request.OrderID,
			"error", err,
		)
		return err
	}

	slog.Info("queued return request scored",
		"merchant_id", merchantID,
		"request_id", resp.RequestID,
		"order_id", reqMsg.Request.OrderID,
		"recommendation", resp.Recommendation,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
