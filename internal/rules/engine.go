// Package rules provides the CEL-Go based custom flag rule engine.
//
// Merchants author boolean CEL expressions over the scoring feature
// variables; rules that evaluate true attach a RiskFlag to the decision,
// weighted by severity exactly like the built-in heuristics.
package rules

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-commerce/kestrel/internal/domain"
)

// Engine compiles and evaluates merchant flag rules. Rules are held in a
// per-merchant map guarded by a RWMutex; reloads swap the map wholesale so
// in-flight evaluations never see a half-loaded set.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string][]*CompiledRule // merchantID -> rules
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.FlagRuleConfig
	Program cel.Program
}

// GlobalMerchantID is the merchant key for rules that apply to all merchants.
const GlobalMerchantID = "*"

// NewEngine creates a flag rule engine with the scoring feature variables
// declared in the CEL environment.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("buyer_return_rate", cel.DoubleType),
		cel.Variable("buyer_total_orders", cel.IntType),
		cel.Variable("buyer_total_returns", cel.IntType),
		cel.Variable("buyer_avg_review_score", cel.DoubleType),
		cel.Variable("buyer_account_age_days", cel.IntType),
		cel.Variable("buyer_total_spend", cel.DoubleType),
		cel.Variable("product_return_rate", cel.DoubleType),
		cel.Variable("product_category", cel.StringType),
		cel.Variable("product_category_risk", cel.DoubleType),
		cel.Variable("product_price", cel.DoubleType),
		cel.Variable("price_tier", cel.StringType),
		cel.Variable("order_amount", cel.DoubleType),
		cel.Variable("days_since_order", cel.IntType),
		cel.Variable("return_reason", cel.StringType),
		cel.Variable("recent_returns", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		compiled: make(map[string][]*CompiledRule),
	}, nil
}

// ValidateRule compiles and validates a rule without loading it.
func (e *Engine) ValidateRule(cfg *domain.FlagRuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("flag rule config is required")
	}
	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles a rule and appends it to the merchant's rule set,
// replacing any loaded rule with the same code.
func (e *Engine) LoadRule(cfg *domain.FlagRuleConfig) error {
	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	existing := e.compiled[cfg.MerchantID]
	next := make([]*CompiledRule, 0, len(existing)+1)
	for _, r := range existing {
		if r.Config.Code != cfg.Code {
			next = append(next, r)
		}
	}
	next = append(next, compiled)
	e.compiled[cfg.MerchantID] = next

	return nil
}

// ReloadRules replaces a merchant's entire rule set. Disabled rules are
// skipped. On compile error the previous set stays in place.
func (e *Engine) ReloadRules(merchantID string, configs []*domain.FlagRuleConfig) error {
	next := make([]*CompiledRule, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		next = append(next, compiled)
	}

	e.mu.Lock()
	e.compiled[merchantID] = next
	e.mu.Unlock()

	return nil
}

// Input holds the feature variables one evaluation sees.
type Input struct {
	Buyer          *domain.Buyer
	Product        *domain.Product
	Request        *domain.ScoreRequest
	DaysSinceOrder int
	AccountAgeDays int
	RecentReturns  int64
}

// EvaluateAll runs every loaded rule for the merchant, plus the global rule
// set, and returns the flags whose expressions evaluated true. A rule that
// errors at evaluation time is skipped; custom rules must never break the
// scoring path.
func (e *Engine) EvaluateAll(ctx context.Context, merchantID string, input *Input) []domain.RiskFlag {
	e.mu.RLock()
	loaded := e.compiled[merchantID]
	rules := make([]*CompiledRule, 0, len(loaded))
	rules = append(rules, loaded...)
	if merchantID != GlobalMerchantID {
		rules = append(rules, e.compiled[GlobalMerchantID]...)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	activation := map[string]any{
		"buyer_return_rate":      input.Buyer.ReturnRate(),
		"buyer_total_orders":     int64(input.Buyer.TotalOrders),
		"buyer_total_returns":    int64(input.Buyer.TotalReturns),
		"buyer_avg_review_score": input.Buyer.AvgReviewScore,
		"buyer_account_age_days": int64(input.AccountAgeDays),
		"buyer_total_spend":      input.Buyer.TotalSpend,
		"product_return_rate":    input.Product.ReturnRate(),
		"product_category":       string(input.Product.Category),
		"product_category_risk":  input.Product.CategoryRisk(),
		"product_price":          input.Product.Price,
		"price_tier":             string(input.Product.PriceTier),
		"order_amount":           input.Request.OrderAmount,
		"days_since_order":       int64(input.DaysSinceOrder),
		"return_reason":          string(input.Request.ReturnReason),
		"recent_returns":         input.RecentReturns,
	}

	var flags []domain.RiskFlag
	for _, rule := range rules {
		if ctx.Err() != nil {
			break
		}
		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			continue
		}
		if fired, ok := out.(types.Bool); ok && bool(fired) {
			flags = append(flags, domain.RiskFlag{
				Code:        rule.Config.Code,
				Description: rule.Config.Description,
				Severity:    rule.Config.Severity,
			})
		}
	}

	return flags
}

// RulesCount returns the number of loaded rules for a merchant.
func (e *Engine) RulesCount(merchantID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled[merchantID])
}

// LoadedRules returns the currently loaded rule configurations for a merchant.
func (e *Engine) LoadedRules(merchantID string) []*domain.FlagRuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.FlagRuleConfig, 0, len(e.compiled[merchantID]))
	for _, compiled := range e.compiled[merchantID] {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Close clears all loaded rules.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string][]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.FlagRuleConfig) (*CompiledRule, error) {
	if cfg.Code == "" {
		return nil, fmt.Errorf("flag rule code is required")
	}
	if !cfg.Severity.Valid() {
		return nil, fmt.Errorf("flag rule %s: unknown severity %q", cfg.Code, cfg.Severity)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile flag rule %s: %w", cfg.Code, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("flag rule %s: expression must return bool, got %s", cfg.Code, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for flag rule %s: %w", cfg.Code, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
