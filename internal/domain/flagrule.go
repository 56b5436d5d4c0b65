package domain

// FlagRuleConfig defines a merchant-authored risk flag rule.
//
// The expression is a CEL boolean over the scoring feature variables
// (buyer_return_rate, order_amount, days_since_order, return_reason, ...).
// When it evaluates true the configured flag is attached to the decision and
// weighted by severity exactly like the built-in heuristics.
type FlagRuleConfig struct {
	Code        string   `json:"code"` // stable flag code, e.g. BULK_ELECTRONICS
	MerchantID  string   `json:"merchantId"`
	Description string   `json:"description"`
	Expression  string   `json:"expression"`
	Severity    Severity `json:"severity"`
	Enabled     bool     `json:"enabled"`
}
