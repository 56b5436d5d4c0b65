// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-commerce/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// GetOrCreateMerchant fetches a merchant, creating it with the default policy
// on first sight.
func (r *SQLRepository) GetOrCreateMerchant(ctx context.Context, merchantID string) (*domain.Merchant, error) {
	if merchantID == "" {
		return nil, fmt.Errorf("%w: merchantID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	policy, _ := json.Marshal(domain.DefaultPolicy())

	insert := `
		INSERT INTO merchants (id, policy, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, r.rebind(insert), merchantID, string(policy), now, now); err != nil {
		return nil, err
	}

	query := `
		SELECT id, policy, created_at, updated_at
		FROM merchants
		WHERE id = ?
	`

	var m domain.Merchant
	var policyJSON string

	err := r.db.QueryRowContext(ctx, r.rebind(query), merchantID).Scan(
		&m.ID, &policyJSON, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(policyJSON), &m.Policy); err != nil {
		return nil, fmt.Errorf("failed to parse merchant policy: %w", err)
	}

	return &m, nil
}

// UpdateMerchantPolicy replaces a merchant's policy.
func (r *SQLRepository) UpdateMerchantPolicy(ctx context.Context, merchantID string, policy domain.MerchantPolicy) error {
	if merchantID == "" {
		return fmt.Errorf("%w: merchantID is required", ErrInvalidInput)
	}

	data, _ := json.Marshal(policy)

	query := `
		UPDATE merchants
		SET policy = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), string(data), time.Now().UTC(), merchantID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// GetOrCreateBuyer fetches a buyer by external ID, creating a zero-valued
// stub on first sight. The uniqueness constraint on (merchant_id,
// external_buyer_id) makes concurrent creates resolve to one row.
func (r *SQLRepository) GetOrCreateBuyer(ctx context.Context, merchantID string, externalBuyerID string) (*domain.Buyer, error) {
	if merchantID == "" {
		return nil, fmt.Errorf("%w: merchantID is required", ErrInvalidInput)
	}
	if externalBuyerID == "" {
		return nil, fmt.Errorf("%w: externalBuyerID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	insert := `
		INSERT INTO buyers (id, merchant_id, external_buyer_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (merchant_id, external_buyer_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, r.rebind(insert), uuid.New().String(), merchantID, externalBuyerID, now, now); err != nil {
		return nil, err
	}

	query := `
		SELECT id, merchant_id, external_buyer_id,
		       total_orders, total_returns, total_reviews,
		       avg_review_score, total_spend,
		       account_created_at, last_order_at,
		       created_at, updated_at
		FROM buyers
		WHERE merchant_id = ? AND external_buyer_id = ?
	`

	var b domain.Buyer
	var accountCreatedAt, lastOrderAt sql.NullTime

	err := r.db.QueryRowContext(ctx, r.rebind(query), merchantID, externalBuyerID).Scan(
		&b.ID, &b.MerchantID, &b.ExternalBuyerID,
		&b.TotalOrders, &b.TotalReturns, &b.TotalReviews,
		&b.AvgReviewScore, &b.TotalSpend,
		&accountCreatedAt, &lastOrderAt,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if accountCreatedAt.Valid {
		b.AccountCreatedAt = &accountCreatedAt.Time
	}
	if lastOrderAt.Valid {
		b.LastOrderAt = &lastOrderAt.Time
	}

	return &b, nil
}

// GetOrCreateProduct fetches a product by external ID, creating a zero-valued
// stub on first sight.
func (r *SQLRepository) GetOrCreateProduct(ctx context.Context, merchantID string, externalProductID string) (*domain.Product, error) {
	if merchantID == "" {
		return nil, fmt.Errorf("%w: merchantID is required", ErrInvalidInput)
	}
	if externalProductID == "" {
		return nil, fmt.Errorf("%w: externalProductID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	insert := `
		INSERT INTO products (id, merchant_id, external_product_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (merchant_id, external_product_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, r.rebind(insert), uuid.New().String(), merchantID, externalProductID, now, now); err != nil {
		return nil, err
	}

	query := `
		SELECT id, merchant_id, external_product_id,
		       name, category, price, price_tier, custom_return_window,
		       total_sold, total_returned,
		       created_at, updated_at
		FROM products
		WHERE merchant_id = ? AND external_product_id = ?
	`

	var p domain.Product

	err := r.db.QueryRowContext(ctx, r.rebind(query), merchantID, externalProductID).Scan(
		&p.ID, &p.MerchantID, &p.ExternalProductID,
		&p.Name, &p.Category, &p.Price, &p.PriceTier, &p.CustomReturnWindow,
		&p.TotalSold, &p.TotalReturned,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// SaveDecision stores one scoring decision record.
func (r *SQLRepository) SaveDecision(ctx context.Context, merchantID string, d *domain.Decision) error {
	if merchantID == "" {
		return fmt.Errorf("%w: merchantID is required", ErrInvalidInput)
	}

	flags := d.Flags
	if flags == nil {
		flags = []domain.RiskFlag{}
	}
	flagsJSON, _ := json.Marshal(flags)

	withinWindow := 0
	if d.WithinWindow {
		withinWindow = 1
	}

	var decidedAt any
	if d.DecidedAt != nil {
		decidedAt = *d.DecidedAt
	}

	query := `
		INSERT INTO return_requests (
			id, merchant_id, buyer_id, product_id,
			order_id, order_date, order_amount, reason, reason_details,
			score, risk_level, flags, confidence, recommendation,
			return_window_days, days_since_order, within_window,
			status, decided_at, decided_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		d.ID, merchantID, d.BuyerID, d.ProductID,
		d.OrderID, d.OrderDate, d.OrderAmount, d.Reason, d.ReasonDetails,
		d.Score, d.RiskLevel, string(flagsJSON), d.Confidence, d.Recommendation,
		d.ReturnWindowDays, d.DaysSinceOrder, withinWindow,
		d.Status, decidedAt, d.DecidedBy, d.CreatedAt,
	)
	return err
}

// GetDecision retrieves a decision record by ID with merchant isolation.
func (r *SQLRepository) GetDecision(ctx context.Context, merchantID string, decisionID string) (*domain.Decision, error) {
	if merchantID == "" {
		return nil, fmt.Errorf("%w: merchantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, merchant_id, buyer_id, product_id,
		       order_id, order_date, order_amount, reason, reason_details,
		       score, risk_level, flags, confidence, recommendation,
		       return_window_days, days_since_order, within_window,
		       status, decided_at, decided_by, created_at
		FROM return_requests
		WHERE merchant_id = ? AND id = ?
	`

	var d domain.Decision
	var flagsJSON string
	var reasonDetails, decidedBy sql.NullString
	var withinWindow int
	var decidedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, r.rebind(query), merchantID, decisionID).Scan(
		&d.ID, &d.MerchantID, &d.BuyerID, &d.ProductID,
		&d.OrderID, &d.OrderDate, &d.OrderAmount, &d.Reason, &reasonDetails,
		&d.Score, &d.RiskLevel, &flagsJSON, &d.Confidence, &d.Recommendation,
		&d.ReturnWindowDays, &d.DaysSinceOrder, &withinWindow,
		&d.Status, &decidedAt, &decidedBy, &d.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(flagsJSON), &d.Flags); err != nil {
		return nil, fmt.Errorf("failed to parse decision flags: %w", err)
	}
	d.ReasonDetails = reasonDetails.String
	d.DecidedBy = decidedBy.String
	d.WithinWindow = withinWindow == 1
	if decidedAt.Valid {
		d.DecidedAt = &decidedAt.Time
	}

	return &d, nil
}

// CountDecisionsSince counts decision records for a buyer since a cutoff.
func (r *SQLRepository) CountDecisionsSince(ctx context.Context, merchantID string, buyerID string, since time.Time) (int64, error) {
	if merchantID == "" {
		return 0, fmt.Errorf("%w: merchantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*) FROM return_requests
		WHERE merchant_id = ? AND buyer_id = ? AND created_at >= ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), merchantID, buyerID, since).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// SaveFlagRule upserts a merchant flag rule.
func (r *SQLRepository) SaveFlagRule(ctx context.Context, merchantID string, rule *domain.FlagRuleConfig) error {
	if merchantID == "" {
		return fmt.Errorf("%w: merchantID is required", ErrInvalidInput)
	}
	if rule.Code == "" {
		return fmt.Errorf("%w: rule code is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO flag_rules (
			code, merchant_id, description, expression, severity, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (code, merchant_id) DO UPDATE SET
			description = excluded.description,
			expression = excluded.expression,
			severity = excluded.severity,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.Code, merchantID, rule.Description, rule.Expression,
		rule.Severity, enabled, now, now,
	)
	return err
}

// ListFlagRules retrieves all enabled flag rules for a merchant.
func (r *SQLRepository) ListFlagRules(ctx context.Context, merchantID string) ([]*domain.FlagRuleConfig, error) {
	if merchantID == "" {
		return nil, fmt.Errorf("%w: merchantID is required", ErrInvalidInput)
	}

	query := `
		SELECT code, merchant_id, description, expression, severity, enabled
		FROM flag_rules
		WHERE merchant_id = ? AND enabled = 1
		ORDER BY code
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.FlagRuleConfig
	for rows.Next() {
		var cfg domain.FlagRuleConfig
		var enabled int

		if err := rows.Scan(
			&cfg.Code, &cfg.MerchantID, &cfg.Description,
			&cfg.Expression, &cfg.Severity, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Enabled = enabled == 1
		rules = append(rules, &cfg)
	}

	return rules, rows.Err()
}

// GetDashboardStats computes summary statistics for a merchant.
func (r *SQLRepository) GetDashboardStats(ctx context.Context, merchantID string) (*domain.DashboardStats, error) {
	if merchantID == "" {
		return nil, fmt.Errorf("%w: merchantID is required", ErrInvalidInput)
	}

	stats := &domain.DashboardStats{}

	returnsQuery := `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'approved' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'denied' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'review' THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(score), 0)
		FROM return_requests
		WHERE merchant_id = ?
	`
	err := r.db.QueryRowContext(ctx, r.rebind(returnsQuery), merchantID).Scan(
		&stats.TotalReturns, &stats.ApprovedReturns, &stats.DeniedReturns,
		&stats.PendingReturns, &stats.AvgScore,
	)
	if err != nil {
		return nil, err
	}

	if decided := stats.ApprovedReturns + stats.DeniedReturns; decided > 0 {
		stats.ApprovalRate = float64(stats.ApprovedReturns) / float64(decided) * 100
	}

	buyersQuery := `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN total_orders > 0 AND CAST(total_returns AS REAL) / total_orders > 0.3 THEN 1 ELSE 0 END), 0)
		FROM buyers
		WHERE merchant_id = ?
	`
	err = r.db.QueryRowContext(ctx, r.rebind(buyersQuery), merchantID).Scan(
		&stats.TotalBuyers, &stats.HighRiskBuyers,
	)
	if err != nil {
		return nil, err
	}

	productsQuery := `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN total_sold > 0 AND CAST(total_returned AS REAL) / total_sold > 0.2 THEN 1 ELSE 0 END), 0)
		FROM products
		WHERE merchant_id = ?
	`
	err = r.db.QueryRowContext(ctx, r.rebind(productsQuery), merchantID).Scan(
		&stats.TotalProducts, &stats.HighReturnProducts,
	)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	weekAgo := now.AddDate(0, 0, -7)
	twoWeeksAgo := now.AddDate(0, 0, -14)

	weekQuery := `
		SELECT COUNT(*) FROM return_requests
		WHERE merchant_id = ? AND created_at >= ?
	`
	if err := r.db.QueryRowContext(ctx, r.rebind(weekQuery), merchantID, weekAgo).Scan(&stats.ReturnsThisWeek); err != nil {
		return nil, err
	}

	lastWeekQuery := `
		SELECT COUNT(*) FROM return_requests
		WHERE merchant_id = ? AND created_at >= ? AND created_at < ?
	`
	if err := r.db.QueryRowContext(ctx, r.rebind(lastWeekQuery), merchantID, twoWeeksAgo, weekAgo).Scan(&stats.ReturnsLastWeek); err != nil {
		return nil, err
	}

	return stats, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
