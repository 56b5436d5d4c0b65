// Package recency counts a buyer's recent return activity.
package recency

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

// Getter is the function signature the scoring engine and the flag rule
// engine expect for recent-return lookups.
type Getter func(ctx context.Context, merchantID, buyerID string) (int64, error)

// countCacheTTL keeps counts fresh enough for flag detection without hitting
// the database on every scoring call for a busy buyer.
const countCacheTTL = 60 * time.Second

// Service counts returns recorded for a buyer since the start of the current
// calendar month.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
	now   func() time.Time
}

// NewService creates a recency service. cache may be nil, in which case every
// lookup goes to the repository.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		now:   time.Now,
	}
}

// CountReturnsThisMonth returns the number of decision records for the buyer
// since the start of the current calendar month, UTC.
func (s *Service) CountReturnsThisMonth(ctx context.Context, merchantID, buyerID string) (int64, error) {
	if merchantID == "" || buyerID == "" {
		return 0, fmt.Errorf("merchantID and buyerID are required")
	}

	key := "returns_month:" + buyerID
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, merchantID, key); err == nil && data != nil {
			if n, err := strconv.ParseInt(string(data), 10, 64); err == nil {
				return n, nil
			}
		}
	}

	now := s.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	count, err := s.repo.CountDecisionsSince(ctx, merchantID, buyerID, monthStart)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent returns: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, merchantID, key, []byte(strconv.FormatInt(count, 10)), countCacheTTL)
	}

	return count, nil
}

// Getter adapts the service to the Getter function type.
func (s *Service) Getter() Getter {
	return s.CountReturnsThisMonth
}
