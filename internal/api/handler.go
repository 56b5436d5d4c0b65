package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-commerce/kestrel/internal/domain"
	"github.com/opensource-commerce/kestrel/internal/engine"
	"github.com/opensource-commerce/kestrel/internal/predict"
	"github.com/opensource-commerce/kestrel/internal/rules"
	"github.com/opensource-commerce/kestrel/internal/worker"
)

// policyCacheTTL bounds how stale a cached merchant policy can get.
const policyCacheTTL = 10 * time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *engine.ScoringEngine
	flagRules *rules.Engine
	predictor *predict.Predictor
	modelPath string
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, eng *engine.ScoringEngine, flagRules *rules.Engine, predictor *predict.Predictor, modelPath string, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		engine:    eng,
		flagRules: flagRules,
		predictor: predictor,
		modelPath: modelPath,
		version:   version,
	}
}

// resolveMerchant fetches the merchant scoring context, preferring the cached
// policy over a repository round trip.
func (h *Handler) resolveMerchant(r *http.Request) (*domain.Merchant, error) {
	ctx := r.Context()
	merchantID := GetMerchantID(ctx)

	if h.cache != nil {
		if policy, err := h.cache.GetPolicy(ctx, merchantID); err == nil && policy != nil {
			return &domain.Merchant{ID: merchantID, Policy: *policy}, nil
		}
	}

	merchant, err := h.repo.GetOrCreateMerchant(ctx, merchantID)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		_ = h.cache.SetPolicy(ctx, merchantID, &merchant.Policy, policyCacheTTL)
	}

	return merchant, nil
}

// Score handles POST /score requests: synchronous scoring of one return
// request.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	merchant, err := h.resolveMerchant(r)
	if err != nil {
		slog.Error("failed to resolve merchant", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to resolve merchant",
		})
		return
	}

	resp, err := h.engine.Score(ctx, merchant, &req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("scoring failed", "order_id", req.OrderID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "scoring failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ScoreAsync handles POST /score/async requests: the request is validated and
// queued for the worker; scoring happens off the request path.
func (h *Handler) ScoreAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := GetMerchantID(ctx)

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	var req domain.ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	payload, err := json.Marshal(worker.RequestMessage{
		MerchantID: merchantID,
		Request:    req,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to queue request",
		})
		return
	}

	if err := h.bus.Publish(ctx, merchantID, domain.TopicReturnRequested, payload); err != nil {
		slog.Error("failed to publish return request", "order_id", req.OrderID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to queue request",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":   "queued",
		"order_id": req.OrderID,
	})
}

// GetReturn handles GET /returns/{id}: retrieves a persisted decision record.
func (h *Handler) GetReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := GetMerchantID(ctx)
	decisionID := chi.URLParam(r, "id")

	if decisionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "return request id is required",
		})
		return
	}

	d, err := h.repo.GetDecision(ctx, merchantID, decisionID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "return request not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// GetBuyer handles GET /buyers/{id}: retrieves the buyer aggregate by the
// merchant's external buyer ID. Unseen IDs get a zero-valued stub.
func (h *Handler) GetBuyer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := GetMerchantID(ctx)
	externalBuyerID := chi.URLParam(r, "id")

	if externalBuyerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "buyer id is required",
		})
		return
	}

	buyer, err := h.repo.GetOrCreateBuyer(ctx, merchantID, externalBuyerID)
	if err != nil {
		slog.Error("failed to get buyer", "buyer_id", externalBuyerID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get buyer",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"buyer":       buyer,
		"return_rate": buyer.ReturnRate(),
	})
}

// GetPolicy handles GET /policy: returns the merchant's current thresholds.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	merchant, err := h.resolveMerchant(r)
	if err != nil {
		slog.Error("failed to resolve merchant", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to resolve merchant",
		})
		return
	}

	writeJSON(w, http.StatusOK, merchant.Policy)
}

// UpdatePolicy handles PUT /policy: replaces the merchant's thresholds.
func (h *Handler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := GetMerchantID(ctx)

	var policy domain.MerchantPolicy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := policy.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	// Ensure the merchant row exists before updating.
	if _, err := h.repo.GetOrCreateMerchant(ctx, merchantID); err != nil {
		slog.Error("failed to resolve merchant", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to resolve merchant",
		})
		return
	}

	if err := h.repo.UpdateMerchantPolicy(ctx, merchantID, policy); err != nil {
		slog.Error("failed to update policy", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to update policy",
		})
		return
	}

	if h.cache != nil {
		_ = h.cache.SetPolicy(ctx, merchantID, &policy, policyCacheTTL)
	}

	slog.Info("merchant policy updated", "merchant_id", merchantID)
	writeJSON(w, http.StatusOK, policy)
}

// ListFlagRules handles GET /flag-rules: returns the rules loaded for this
// merchant.
func (h *Handler) ListFlagRules(w http.ResponseWriter, r *http.Request) {
	merchantID := GetMerchantID(r.Context())

	if h.flagRules == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "flag rule engine not available",
		})
		return
	}

	loaded := h.flagRules.LoadedRules(merchantID)

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": loaded,
		"count": len(loaded),
	})
}

// CreateFlagRuleRequest is the request body for creating a flag rule.
type CreateFlagRuleRequest struct {
	Code        string          `json:"code"`
	Description string          `json:"description,omitempty"`
	Expression  string          `json:"expression"`
	Severity    domain.Severity `json:"severity"`
	Enabled     bool            `json:"enabled"`
}

// CreateFlagRule handles POST /flag-rules: validates, persists, and loads a
// merchant flag rule.
func (h *Handler) CreateFlagRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := GetMerchantID(ctx)

	if h.flagRules == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "flag rule engine not available",
		})
		return
	}

	var req CreateFlagRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Code == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "code and expression are required",
		})
		return
	}

	cfg := &domain.FlagRuleConfig{
		Code:        req.Code,
		MerchantID:  merchantID,
		Description: req.Description,
		Expression:  req.Expression,
		Severity:    req.Severity,
		Enabled:     req.Enabled,
	}

	if err := h.flagRules.ValidateRule(cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid flag rule: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveFlagRule(ctx, merchantID, cfg); err != nil {
		slog.Error("failed to save flag rule", "code", cfg.Code, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save flag rule",
		})
		return
	}

	if cfg.Enabled {
		if err := h.flagRules.LoadRule(cfg); err != nil {
			slog.Error("failed to load flag rule", "code", cfg.Code, "error", err)
		}
	}

	slog.Info("flag rule created", "merchant_id", merchantID, "code", cfg.Code)
	writeJSON(w, http.StatusCreated, cfg)
}

// ReloadFlagRules handles POST /flag-rules/reload: re-reads the merchant's
// rules from the database and swaps them into the engine.
func (h *Handler) ReloadFlagRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := GetMerchantID(ctx)

	if h.flagRules == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "flag rule engine not available",
		})
		return
	}

	dbRules, err := h.repo.ListFlagRules(ctx, merchantID)
	if err != nil {
		slog.Error("failed to list flag rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load flag rules from database",
		})
		return
	}

	if err := h.flagRules.ReloadRules(merchantID, dbRules); err != nil {
		slog.Error("failed to reload flag rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload flag rules: " + err.Error(),
		})
		return
	}

	slog.Info("flag rules reloaded", "merchant_id", merchantID, "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "flag rules reloaded successfully",
		"count":   len(dbRules),
	})
}

// ReloadModel handles POST /model/reload: re-reads the model artifact from
// disk and swaps it in atomically.
func (h *Handler) ReloadModel(w http.ResponseWriter, r *http.Request) {
	if h.predictor == nil || h.modelPath == "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "no model path configured",
		})
		return
	}

	if err := h.predictor.Reload(h.modelPath); err != nil {
		slog.Error("model reload failed", "path", h.modelPath, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "model reload failed: " + err.Error(),
		})
		return
	}

	version := h.predictor.ModelVersion()
	slog.Info("model reloaded", "path", h.modelPath, "model_version", version)
	writeJSON(w, http.StatusOK, map[string]string{
		"message":       "model reloaded successfully",
		"model_version": version,
	})
}

// DashboardStats handles GET /dashboard/stats.
func (h *Handler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := GetMerchantID(ctx)

	stats, err := h.repo.GetDashboardStats(ctx, merchantID)
	if err != nil {
		slog.Error("failed to compute dashboard stats", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute dashboard stats",
		})
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	modelVersion := ""
	if h.predictor != nil {
		modelVersion = h.predictor.ModelVersion()
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":        status,
		"version":       h.version,
		"model_version": modelVersion,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
