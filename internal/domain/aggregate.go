package domain

import (
	"time"
)

// PriceTier buckets a product by price.
type PriceTier string

const (
	TierLowPrice PriceTier = "low"     // < $50
	TierMedPrice PriceTier = "medium"  // $50-200
	TierHigh     PriceTier = "high"    // $200-500
	TierPremium  PriceTier = "premium" // > $500
)

// PriceTierFor derives the tier from a price.
func PriceTierFor(price float64) PriceTier {
	switch {
	case price < 50:
		return TierLowPrice
	case price < 200:
		return TierMedPrice
	case price < 500:
		return TierHigh
	default:
		return TierPremium
	}
}

// ProductCategory is the product's merchandise category.
type ProductCategory string

const (
	CategoryClothing    ProductCategory = "clothing"
	CategoryElectronics ProductCategory = "electronics"
	CategoryHome        ProductCategory = "home"
	CategoryBeauty      ProductCategory = "beauty"
	CategorySports      ProductCategory = "sports"
	CategoryToys        ProductCategory = "toys"
	CategoryFood        ProductCategory = "food"
	CategoryOther       ProductCategory = "other"
)

// categoryRiskScores maps categories to baseline return risk. Higher values
// mean the category sees more (often legitimate) returns, e.g. clothing size
// issues.
var categoryRiskScores = map[ProductCategory]float64{
	CategoryClothing:    0.7,
	CategoryElectronics: 0.5,
	CategoryHome:        0.4,
	CategoryBeauty:      0.6,
	CategorySports:      0.5,
	CategoryToys:        0.3,
	CategoryFood:        0.2,
	CategoryOther:       0.5,
}

// CategoryRiskScore returns the risk score for a category, defaulting to 0.5
// for unknown categories.
func CategoryRiskScore(c ProductCategory) float64 {
	if s, ok := categoryRiskScores[c]; ok {
		return s
	}
	return 0.5
}

// Buyer is the behavioral summary of one buyer, scoped to a merchant.
// First-seen external IDs get a zero-valued stub record.
type Buyer struct {
	ID              string `json:"id"`
	MerchantID      string `json:"merchantId"`
	ExternalBuyerID string `json:"externalBuyerId"`

	TotalOrders    int     `json:"totalOrders"`
	TotalReturns   int     `json:"totalReturns"`
	TotalReviews   int     `json:"totalReviews"`
	AvgReviewScore float64 `json:"avgReviewScore"` // 1-5 scale, 0 = no reviews
	TotalSpend     float64 `json:"totalSpend"`

	AccountCreatedAt *time.Time `json:"accountCreatedAt,omitempty"`
	LastOrderAt      *time.Time `json:"lastOrderAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// ReturnRate is the buyer's historical returns-per-order ratio.
func (b *Buyer) ReturnRate() float64 {
	if b.TotalOrders == 0 {
		return 0
	}
	return float64(b.TotalReturns) / float64(b.TotalOrders)
}

// AccountAgeDays is the buyer's account age at time now, 0 when unknown.
func (b *Buyer) AccountAgeDays(now time.Time) int {
	if b.AccountCreatedAt == nil {
		return 0
	}
	days := int(now.Sub(*b.AccountCreatedAt).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// Product is the behavioral summary of one product, scoped to a merchant.
type Product struct {
	ID                string `json:"id"`
	MerchantID        string `json:"merchantId"`
	ExternalProductID string `json:"externalProductId"`

	Name      string          `json:"name"`
	Category  ProductCategory `json:"category"`
	Price     float64         `json:"price"`
	PriceTier PriceTier       `json:"priceTier"`

	// CustomReturnWindow overrides the merchant default when > 0.
	CustomReturnWindow int `json:"customReturnWindow,omitempty"`

	TotalSold     int `json:"totalSold"`
	TotalReturned int `json:"totalReturned"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ReturnRate is the product's returns-per-sale ratio.
func (p *Product) ReturnRate() float64 {
	if p.TotalSold == 0 {
		return 0
	}
	return float64(p.TotalReturned) / float64(p.TotalSold)
}

// CategoryRisk is the product's category risk score.
func (p *Product) CategoryRisk() float64 {
	return CategoryRiskScore(p.Category)
}

// EffectiveReturnWindow resolves the window in days for this product under
// the given merchant default.
func (p *Product) EffectiveReturnWindow(merchantDefault int) int {
	if p.CustomReturnWindow > 0 {
		return p.CustomReturnWindow
	}
	return merchantDefault
}
