package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaMerchants = `
CREATE TABLE IF NOT EXISTS merchants (
    id TEXT PRIMARY KEY,
    policy TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaBuyers = `
CREATE TABLE IF NOT EXISTS buyers (
    id TEXT PRIMARY KEY,
    merchant_id TEXT NOT NULL,
    external_buyer_id TEXT NOT NULL,
    total_orders INTEGER NOT NULL DEFAULT 0,
    total_returns INTEGER NOT NULL DEFAULT 0,
    total_reviews INTEGER NOT NULL DEFAULT 0,
    avg_review_score REAL NOT NULL DEFAULT 0,
    total_spend REAL NOT NULL DEFAULT 0,
    account_created_at TIMESTAMP,
    last_order_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    UNIQUE (merchant_id, external_buyer_id)
);

CREATE INDEX IF NOT EXISTS idx_buyers_merchant ON buyers(merchant_id);
`

const schemaProducts = `
CREATE TABLE IF NOT EXISTS products (
    id TEXT PRIMARY KEY,
    merchant_id TEXT NOT NULL,
    external_product_id TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL DEFAULT 'other',
    price REAL NOT NULL DEFAULT 0,
    price_tier TEXT NOT NULL DEFAULT 'low',
    custom_return_window INTEGER NOT NULL DEFAULT 0,
    total_sold INTEGER NOT NULL DEFAULT 0,
    total_returned INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    UNIQUE (merchant_id, external_product_id)
);

CREATE INDEX IF NOT EXISTS idx_products_merchant ON products(merchant_id);
`

const schemaReturnRequests = `
CREATE TABLE IF NOT EXISTS return_requests (
    id TEXT PRIMARY KEY,
    merchant_id TEXT NOT NULL,
    buyer_id TEXT NOT NULL,
    product_id TEXT NOT NULL,
    order_id TEXT NOT NULL,
    order_date TIMESTAMP NOT NULL,
    order_amount REAL NOT NULL,
    reason TEXT NOT NULL,
    reason_details TEXT,
    score REAL NOT NULL,
    risk_level TEXT NOT NULL,
    flags TEXT NOT NULL,
    confidence REAL NOT NULL,
    recommendation TEXT NOT NULL,
    return_window_days INTEGER NOT NULL,
    days_since_order INTEGER NOT NULL,
    within_window INTEGER NOT NULL,
    status TEXT NOT NULL,
    decided_at TIMESTAMP,
    decided_by TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_return_requests_merchant ON return_requests(merchant_id);
CREATE INDEX IF NOT EXISTS idx_return_requests_buyer ON return_requests(merchant_id, buyer_id, created_at);
CREATE INDEX IF NOT EXISTS idx_return_requests_status ON return_requests(merchant_id, status);
CREATE INDEX IF NOT EXISTS idx_return_requests_created ON return_requests(merchant_id, created_at);
`

const schemaFlagRules = `
CREATE TABLE IF NOT EXISTS flag_rules (
    code TEXT NOT NULL,
    merchant_id TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    expression TEXT NOT NULL,
    severity TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (code, merchant_id)
);

CREATE INDEX IF NOT EXISTS idx_flag_rules_merchant ON flag_rules(merchant_id);
CREATE INDEX IF NOT EXISTS idx_flag_rules_enabled ON flag_rules(merchant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaMerchants,
		schemaBuyers,
		schemaProducts,
		schemaReturnRequests,
		schemaFlagRules,
	}
}
