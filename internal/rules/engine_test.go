package rules

import (
	"context"
	"testing"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

func testInput() *Input {
	return &Input{
		Buyer: &domain.Buyer{
			TotalOrders:    10,
			TotalReturns:   2,
			AvgReviewScore: 3.5,
			TotalSpend:     1200,
		},
		Product: &domain.Product{
			Category:  domain.CategoryClothing,
			Price:     150,
			PriceTier: domain.TierMedPrice,
		},
		Request: &domain.ScoreRequest{
			OrderAmount:  150,
			ReturnReason: domain.ReasonChangedMind,
		},
		DaysSinceOrder: 12,
		AccountAgeDays: 200,
		RecentReturns:  1,
	}
}

func ruleConfig(code, merchantID, expr string) *domain.FlagRuleConfig {
	return &domain.FlagRuleConfig{
		Code:        code,
		MerchantID:  merchantID,
		Description: "test rule",
		Expression:  expr,
		Severity:    domain.SeverityMedium,
		Enabled:     true,
	}
}

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.RulesCount("m1") != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RulesCount("m1"))
	}
}

func TestLoadRule(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	if err := engine.LoadRule(ruleConfig("BIG_ORDER", "m1", "order_amount > 100.0")); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}
	if engine.RulesCount("m1") != 1 {
		t.Errorf("expected 1 rule, got %d", engine.RulesCount("m1"))
	}

	// Loading the same code again replaces, not appends.
	if err := engine.LoadRule(ruleConfig("BIG_ORDER", "m1", "order_amount > 200.0")); err != nil {
		t.Fatalf("failed to replace rule: %v", err)
	}
	if engine.RulesCount("m1") != 1 {
		t.Errorf("expected 1 rule after replace, got %d", engine.RulesCount("m1"))
	}
}

func TestValidateRule(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	t.Run("InvalidCEL", func(t *testing.T) {
		if err := engine.ValidateRule(ruleConfig("BAD", "m1", "this is not CEL !!!")); err == nil {
			t.Error("expected error for invalid CEL expression")
		}
	})

	t.Run("NonBooleanExpression", func(t *testing.T) {
		if err := engine.ValidateRule(ruleConfig("BAD", "m1", "order_amount + 1.0")); err == nil {
			t.Error("expected error for non-boolean expression")
		}
	})

	t.Run("MissingCode", func(t *testing.T) {
		if err := engine.ValidateRule(ruleConfig("", "m1", "order_amount > 1.0")); err == nil {
			t.Error("expected error for missing code")
		}
	})

	t.Run("BadSeverity", func(t *testing.T) {
		cfg := ruleConfig("BAD_SEV", "m1", "order_amount > 1.0")
		cfg.Severity = "critical"
		if err := engine.ValidateRule(cfg); err == nil {
			t.Error("expected error for unknown severity")
		}
	})

	t.Run("UnknownVariable", func(t *testing.T) {
		if err := engine.ValidateRule(ruleConfig("BAD", "m1", "no_such_var > 1.0")); err == nil {
			t.Error("expected error for unknown variable")
		}
	})
}

func TestEvaluateAll(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	_ = engine.LoadRule(ruleConfig("PRICEY_MIND_CHANGE", "m1",
		`return_reason == "changed_mind" && order_amount > 100.0`))
	_ = engine.LoadRule(ruleConfig("BULK_RETURNER", "m1",
		"recent_returns > 5"))

	flags := engine.EvaluateAll(context.Background(), "m1", testInput())
	if len(flags) != 1 {
		t.Fatalf("expected 1 flag, got %d", len(flags))
	}
	if flags[0].Code != "PRICEY_MIND_CHANGE" {
		t.Errorf("flag code = %q, want PRICEY_MIND_CHANGE", flags[0].Code)
	}
	if flags[0].Severity != domain.SeverityMedium {
		t.Errorf("flag severity = %q, want medium", flags[0].Severity)
	}
}

func TestEvaluateAllMerchantIsolation(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	_ = engine.LoadRule(ruleConfig("M1_ONLY", "m1", "order_amount > 0.0"))

	if flags := engine.EvaluateAll(context.Background(), "m2", testInput()); len(flags) != 0 {
		t.Errorf("merchant m2 must not see m1 rules, got %v", flags)
	}
}

func TestEvaluateAllIncludesGlobalRules(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	_ = engine.LoadRule(ruleConfig("GLOBAL_RULE", GlobalMerchantID, "order_amount > 0.0"))
	_ = engine.LoadRule(ruleConfig("M1_RULE", "m1", "order_amount > 0.0"))

	flags := engine.EvaluateAll(context.Background(), "m1", testInput())
	if len(flags) != 2 {
		t.Fatalf("expected merchant + global rules to fire, got %d flags", len(flags))
	}
}

func TestEvaluateAllSkipsErroringRule(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	// Division by zero errors at evaluation time for integer operands.
	_ = engine.LoadRule(ruleConfig("DIV_ZERO", "m1", "100 / (buyer_total_orders - 10) > 1"))
	_ = engine.LoadRule(ruleConfig("FIRES", "m1", "days_since_order > 5"))

	flags := engine.EvaluateAll(context.Background(), "m1", testInput())
	if len(flags) != 1 || flags[0].Code != "FIRES" {
		t.Errorf("expected only FIRES, got %v", flags)
	}
}

func TestReloadRules(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	_ = engine.LoadRule(ruleConfig("OLD", "m1", "order_amount > 0.0"))

	configs := []*domain.FlagRuleConfig{
		ruleConfig("NEW_A", "m1", "order_amount > 0.0"),
		ruleConfig("NEW_B", "m1", "days_since_order > 100"),
	}
	disabled := ruleConfig("DISABLED", "m1", "order_amount > 0.0")
	disabled.Enabled = false
	configs = append(configs, disabled)

	if err := engine.ReloadRules("m1", configs); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if engine.RulesCount("m1") != 2 {
		t.Errorf("expected 2 rules after reload, got %d", engine.RulesCount("m1"))
	}

	loaded := engine.LoadedRules("m1")
	for _, cfg := range loaded {
		if cfg.Code == "OLD" {
			t.Error("reload must replace the previous rule set")
		}
		if cfg.Code == "DISABLED" {
			t.Error("disabled rules must not load")
		}
	}
}

func TestReloadRulesKeepsOldSetOnError(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	_ = engine.LoadRule(ruleConfig("KEEP", "m1", "order_amount > 0.0"))

	err := engine.ReloadRules("m1", []*domain.FlagRuleConfig{
		ruleConfig("BROKEN", "m1", "not valid CEL !!!"),
	})
	if err == nil {
		t.Fatal("expected reload error for a broken rule")
	}
	if engine.RulesCount("m1") != 1 {
		t.Errorf("previous rule set must survive a failed reload, got %d rules", engine.RulesCount("m1"))
	}
}
