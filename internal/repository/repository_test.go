package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

func testRepo(t *testing.T) domain.Repository {
	t.Helper()
	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "kestrel_test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testDecision(merchantID, buyerID string) *domain.Decision {
	now := time.Now().UTC()
	decidedAt := now
	return &domain.Decision{
		ID:         "dec-" + buyerID + "-" + now.Format("150405.000000000"),
		MerchantID: merchantID,
		BuyerID:    buyerID,
		ProductID:  "prod-internal-1",

		OrderID:     "order-1",
		OrderDate:   now.AddDate(0, 0, -5),
		OrderAmount: 120.50,
		Reason:      domain.ReasonSizeIssue,

		Score:     72.5,
		RiskLevel: domain.RiskLow,
		Flags: []domain.RiskFlag{
			{Code: domain.FlagHighValueItem, Description: "big", Severity: domain.SeverityMedium},
		},
		Confidence:     0.8,
		Recommendation: domain.RecommendApprove,

		ReturnWindowDays: 30,
		DaysSinceOrder:   5,
		WithinWindow:     true,

		Status:    domain.DecisionApproved,
		DecidedAt: &decidedAt,
		DecidedBy: domain.DecidedBySystem,
		CreatedAt: now,
	}
}

func TestGetOrCreateMerchant(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	m, err := repo.GetOrCreateMerchant(ctx, "merchant-001")
	if err != nil {
		t.Fatalf("GetOrCreateMerchant failed: %v", err)
	}
	if m.ID != "merchant-001" {
		t.Errorf("merchant ID = %q", m.ID)
	}
	if m.Policy != domain.DefaultPolicy() {
		t.Errorf("new merchant policy = %+v, want default", m.Policy)
	}

	// Second call returns the same merchant, not a fresh one.
	again, err := repo.GetOrCreateMerchant(ctx, "merchant-001")
	if err != nil {
		t.Fatalf("second GetOrCreateMerchant failed: %v", err)
	}
	if !again.CreatedAt.Equal(m.CreatedAt) {
		t.Error("get-or-create must be idempotent")
	}

	if _, err := repo.GetOrCreateMerchant(ctx, ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty ID, got %v", err)
	}
}

func TestUpdateMerchantPolicy(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	_, _ = repo.GetOrCreateMerchant(ctx, "merchant-001")

	policy := domain.DefaultPolicy()
	policy.AutoApproveThreshold = 85
	policy.DefaultReturnWindow = 60

	if err := repo.UpdateMerchantPolicy(ctx, "merchant-001", policy); err != nil {
		t.Fatalf("UpdateMerchantPolicy failed: %v", err)
	}

	m, _ := repo.GetOrCreateMerchant(ctx, "merchant-001")
	if m.Policy.AutoApproveThreshold != 85 || m.Policy.DefaultReturnWindow != 60 {
		t.Errorf("policy after update = %+v", m.Policy)
	}

	err := repo.UpdateMerchantPolicy(ctx, "no-such-merchant", policy)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown merchant, got %v", err)
	}
}

func TestGetOrCreateBuyer(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	b, err := repo.GetOrCreateBuyer(ctx, "merchant-001", "ext-buyer-1")
	if err != nil {
		t.Fatalf("GetOrCreateBuyer failed: %v", err)
	}
	if b.ID == "" {
		t.Error("expected generated internal ID")
	}
	if b.ExternalBuyerID != "ext-buyer-1" {
		t.Errorf("external ID = %q", b.ExternalBuyerID)
	}
	if b.TotalOrders != 0 || b.TotalReturns != 0 {
		t.Error("first-seen buyer must be a zero-valued stub")
	}
	if b.AccountCreatedAt != nil {
		t.Error("stub buyer has no account creation date")
	}

	again, _ := repo.GetOrCreateBuyer(ctx, "merchant-001", "ext-buyer-1")
	if again.ID != b.ID {
		t.Error("same external ID must resolve to the same row")
	}

	// Same external ID under another merchant is a different buyer.
	other, _ := repo.GetOrCreateBuyer(ctx, "merchant-002", "ext-buyer-1")
	if other.ID == b.ID {
		t.Error("buyers must be isolated per merchant")
	}
}

func TestGetOrCreateProduct(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	p, err := repo.GetOrCreateProduct(ctx, "merchant-001", "sku-1")
	if err != nil {
		t.Fatalf("GetOrCreateProduct failed: %v", err)
	}
	if p.ExternalProductID != "sku-1" {
		t.Errorf("external ID = %q", p.ExternalProductID)
	}
	if p.CustomReturnWindow != 0 {
		t.Error("stub product has no custom return window")
	}

	again, _ := repo.GetOrCreateProduct(ctx, "merchant-001", "sku-1")
	if again.ID != p.ID {
		t.Error("same external ID must resolve to the same row")
	}
}

func TestDecisionRoundtrip(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	d := testDecision("merchant-001", "buyer-internal-1")
	if err := repo.SaveDecision(ctx, "merchant-001", d); err != nil {
		t.Fatalf("SaveDecision failed: %v", err)
	}

	got, err := repo.GetDecision(ctx, "merchant-001", d.ID)
	if err != nil {
		t.Fatalf("GetDecision failed: %v", err)
	}

	if got.Score != d.Score {
		t.Errorf("score = %v, want %v", got.Score, d.Score)
	}
	if got.Recommendation != domain.RecommendApprove {
		t.Errorf("recommendation = %q", got.Recommendation)
	}
	if got.Status != domain.DecisionApproved {
		t.Errorf("status = %q", got.Status)
	}
	if got.DecidedBy != domain.DecidedBySystem {
		t.Errorf("decidedBy = %q", got.DecidedBy)
	}
	if got.DecidedAt == nil {
		t.Error("expected decidedAt set")
	}
	if !got.WithinWindow {
		t.Error("expected withinWindow true")
	}
	if len(got.Flags) != 1 || got.Flags[0].Code != domain.FlagHighValueItem {
		t.Errorf("flags = %+v", got.Flags)
	}
}

func TestGetDecisionIsolationAndMissing(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	d := testDecision("merchant-001", "buyer-internal-1")
	_ = repo.SaveDecision(ctx, "merchant-001", d)

	if _, err := repo.GetDecision(ctx, "merchant-002", d.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound across merchants, got %v", err)
	}
	if _, err := repo.GetDecision(ctx, "merchant-001", "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown ID, got %v", err)
	}
}

func TestSaveDecisionPendingReview(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	d := testDecision("merchant-001", "buyer-internal-1")
	d.Status = domain.DecisionReview
	d.Recommendation = domain.RecommendReview
	d.DecidedAt = nil
	d.DecidedBy = ""

	if err := repo.SaveDecision(ctx, "merchant-001", d); err != nil {
		t.Fatalf("SaveDecision failed: %v", err)
	}

	got, err := repo.GetDecision(ctx, "merchant-001", d.ID)
	if err != nil {
		t.Fatalf("GetDecision failed: %v", err)
	}
	if got.DecidedAt != nil {
		t.Error("review decisions carry no decidedAt")
	}
	if got.DecidedBy != "" {
		t.Errorf("decidedBy = %q, want empty", got.DecidedBy)
	}
}

func TestCountDecisionsSince(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d := testDecision("merchant-001", "buyer-internal-1")
		d.ID = d.ID + string(rune('a'+i))
		_ = repo.SaveDecision(ctx, "merchant-001", d)
	}
	other := testDecision("merchant-001", "buyer-internal-2")
	_ = repo.SaveDecision(ctx, "merchant-001", other)

	count, err := repo.CountDecisionsSince(ctx, "merchant-001", "buyer-internal-1", time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountDecisionsSince failed: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	count, _ = repo.CountDecisionsSince(ctx, "merchant-001", "buyer-internal-1", time.Now().UTC().Add(time.Hour))
	if count != 0 {
		t.Errorf("count = %d, want 0 for future cutoff", count)
	}
}

func TestFlagRules(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	rule := &domain.FlagRuleConfig{
		Code:        "PRICEY_MIND_CHANGE",
		MerchantID:  "merchant-001",
		Description: "expensive changed mind",
		Expression:  `return_reason == "changed_mind" && order_amount > 200.0`,
		Severity:    domain.SeverityMedium,
		Enabled:     true,
	}
	if err := repo.SaveFlagRule(ctx, "merchant-001", rule); err != nil {
		t.Fatalf("SaveFlagRule failed: %v", err)
	}

	rules, err := repo.ListFlagRules(ctx, "merchant-001")
	if err != nil {
		t.Fatalf("ListFlagRules failed: %v", err)
	}
	if len(rules) != 1 || rules[0].Code != "PRICEY_MIND_CHANGE" {
		t.Fatalf("rules = %+v", rules)
	}

	// Upsert replaces in place.
	rule.Severity = domain.SeverityHigh
	if err := repo.SaveFlagRule(ctx, "merchant-001", rule); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	rules, _ = repo.ListFlagRules(ctx, "merchant-001")
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule after upsert, got %d", len(rules))
	}
	if rules[0].Severity != domain.SeverityHigh {
		t.Errorf("severity after upsert = %q", rules[0].Severity)
	}

	// Disabling hides the rule from the list.
	rule.Enabled = false
	_ = repo.SaveFlagRule(ctx, "merchant-001", rule)
	rules, _ = repo.ListFlagRules(ctx, "merchant-001")
	if len(rules) != 0 {
		t.Errorf("expected disabled rule hidden, got %d rules", len(rules))
	}
}

func TestGetDashboardStats(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	_, _ = repo.GetOrCreateMerchant(ctx, "merchant-001")
	_, _ = repo.GetOrCreateBuyer(ctx, "merchant-001", "ext-buyer-1")
	_, _ = repo.GetOrCreateProduct(ctx, "merchant-001", "sku-1")

	approved := testDecision("merchant-001", "buyer-internal-1")
	approved.ID = "dec-approved"
	approved.Score = 80
	_ = repo.SaveDecision(ctx, "merchant-001", approved)

	denied := testDecision("merchant-001", "buyer-internal-1")
	denied.ID = "dec-denied"
	denied.Score = 20
	denied.Status = domain.DecisionDenied
	denied.Recommendation = domain.RecommendDeny
	_ = repo.SaveDecision(ctx, "merchant-001", denied)

	pending := testDecision("merchant-001", "buyer-internal-2")
	pending.ID = "dec-pending"
	pending.Score = 50
	pending.Status = domain.DecisionReview
	pending.DecidedAt = nil
	pending.DecidedBy = ""
	_ = repo.SaveDecision(ctx, "merchant-001", pending)

	stats, err := repo.GetDashboardStats(ctx, "merchant-001")
	if err != nil {
		t.Fatalf("GetDashboardStats failed: %v", err)
	}

	if stats.TotalReturns != 3 {
		t.Errorf("totalReturns = %d, want 3", stats.TotalReturns)
	}
	if stats.ApprovedReturns != 1 || stats.DeniedReturns != 1 || stats.PendingReturns != 1 {
		t.Errorf("status counts = %d/%d/%d, want 1/1/1",
			stats.ApprovedReturns, stats.DeniedReturns, stats.PendingReturns)
	}
	if stats.ApprovalRate != 50 {
		t.Errorf("approvalRate = %v, want 50", stats.ApprovalRate)
	}
	if stats.AvgScore != 50 {
		t.Errorf("avgScore = %v, want 50", stats.AvgScore)
	}
	if stats.TotalBuyers != 1 {
		t.Errorf("totalBuyers = %d, want 1", stats.TotalBuyers)
	}
	if stats.TotalProducts != 1 {
		t.Errorf("totalProducts = %d, want 1", stats.TotalProducts)
	}
	if stats.ReturnsThisWeek != 3 {
		t.Errorf("returnsThisWeek = %d, want 3", stats.ReturnsThisWeek)
	}
}

func TestUnsupportedDriver(t *testing.T) {
	if _, err := New(domain.RepositoryConfig{Driver: "oracle"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}
