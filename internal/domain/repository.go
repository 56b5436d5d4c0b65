// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require merchantID for strict per-merchant isolation.
type Repository interface {
	// Merchant operations. GetOrCreateMerchant creates the merchant with
	// DefaultPolicy on first sight.
	GetOrCreateMerchant(ctx context.Context, merchantID string) (*Merchant, error)
	UpdateMerchantPolicy(ctx context.Context, merchantID string, policy MerchantPolicy) error

	// Aggregate operations. Get-or-create is idempotent: concurrent creates
	// for the same external ID resolve to one row via a uniqueness
	// constraint.
	GetOrCreateBuyer(ctx context.Context, merchantID string, externalBuyerID string) (*Buyer, error)
	GetOrCreateProduct(ctx context.Context, merchantID string, externalProductID string) (*Product, error)

	// Decision records
	SaveDecision(ctx context.Context, merchantID string, d *Decision) error
	GetDecision(ctx context.Context, merchantID string, decisionID string) (*Decision, error)
	CountDecisionsSince(ctx context.Context, merchantID string, buyerID string, since time.Time) (int64, error)

	// Custom flag rule configuration
	SaveFlagRule(ctx context.Context, merchantID string, rule *FlagRuleConfig) error
	ListFlagRules(ctx context.Context, merchantID string) ([]*FlagRuleConfig, error)

	// Dashboard
	GetDashboardStats(ctx context.Context, merchantID string) (*DashboardStats, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
