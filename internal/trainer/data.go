// Package trainer fits the boosted-stump scoring model offline. It is not on
// the serving path; the serving side only loads the serialized artifact.
package trainer

import (
	"math"
	"math/rand"

	"github.com/opensource-commerce/kestrel/internal/domain"
	"github.com/opensource-commerce/kestrel/internal/features"
)

// buyerProfile describes one synthetic buyer population.
type buyerProfile struct {
	weight          float64
	ordersMin       int
	ordersMax       int
	returnRateMin   float64
	returnRateMax   float64
	reviewScoreMin  float64
	reviewScoreMax  float64
	accountAgeMin   int
	accountAgeMax   int
	fraudLikelihood float64
}

// Buyer populations, weighted by prevalence. The fraud likelihood drives the
// sample label.
var buyerProfiles = []buyerProfile{
	{0.30, 20, 100, 0.02, 0.08, 4.0, 5.0, 365, 2000, 0.01}, // loyal
	{0.35, 5, 30, 0.05, 0.15, 3.5, 4.5, 90, 730, 0.05},     // regular
	{0.20, 1, 5, 0.10, 0.25, 3.0, 5.0, 1, 90, 0.15},        // new
	{0.10, 10, 50, 0.25, 0.50, 2.0, 3.5, 30, 365, 0.25},    // high returner
	{0.05, 1, 10, 0.40, 0.80, 1.0, 2.5, 1, 60, 0.60},       // potential fraudster
}

// categoryProfile describes one synthetic product category.
type categoryProfile struct {
	category      domain.ProductCategory
	returnRate    float64
	fraudRate     float64
	priceMin      float64
	priceMax      float64
	commonReasons []domain.ReturnReason
}

var categoryProfiles = []categoryProfile{
	{domain.CategoryClothing, 0.28, 0.09, 15, 300, []domain.ReturnReason{domain.ReasonSizeIssue, domain.ReasonNotAsDescribed, domain.ReasonChangedMind}},
	{domain.CategoryElectronics, 0.09, 0.13, 30, 2500, []domain.ReturnReason{domain.ReasonDefective, domain.ReasonNotAsDescribed, domain.ReasonChangedMind}},
	{domain.CategoryHome, 0.11, 0.06, 10, 800, []domain.ReturnReason{domain.ReasonDefective, domain.ReasonDamagedInShipping, domain.ReasonNotAsDescribed}},
	{domain.CategoryBeauty, 0.15, 0.07, 5, 150, []domain.ReturnReason{domain.ReasonNotAsDescribed, domain.ReasonDefective, domain.ReasonChangedMind}},
	{domain.CategorySports, 0.14, 0.05, 10, 600, []domain.ReturnReason{domain.ReasonSizeIssue, domain.ReasonNotAsDescribed, domain.ReasonDefective}},
	{domain.CategoryToys, 0.08, 0.04, 5, 200, []domain.ReturnReason{domain.ReasonDefective, domain.ReasonNotAsDescribed, domain.ReasonDamagedInShipping}},
	{domain.CategoryFood, 0.02, 0.01, 5, 80, []domain.ReturnReason{domain.ReasonDefective, domain.ReasonArrivedLate, domain.ReasonWrongItem}},
	{domain.CategoryOther, 0.12, 0.08, 5, 1200, []domain.ReturnReason{domain.ReasonNotAsDescribed, domain.ReasonChangedMind, domain.ReasonOther}},
}

// Sample is one labeled training example. Label 1 means eligible (legitimate
// return), 0 means fraud/abuse.
type Sample struct {
	Bag   *features.Bag
	Label int
}

// GenerateDataset produces n synthetic labeled samples from the buyer and
// category populations. The same seed reproduces the same dataset.
func GenerateDataset(n int, seed int64) []Sample {
	rng := rand.New(rand.NewSource(seed))
	samples := make([]Sample, 0, n)
	for i := 0; i < n; i++ {
		samples = append(samples, generateSample(rng))
	}
	return samples
}

func generateSample(rng *rand.Rand) Sample {
	profile := pickProfile(rng)
	cat := categoryProfiles[rng.Intn(len(categoryProfiles))]

	totalOrders := profile.ordersMin + rng.Intn(profile.ordersMax-profile.ordersMin+1)
	returnRate := uniform(rng, profile.returnRateMin, profile.returnRateMax)
	totalReturns := int(float64(totalOrders) * returnRate)
	price := uniform(rng, cat.priceMin, cat.priceMax)

	// Fraud probability mixes buyer disposition, category fraud pressure,
	// and a price factor: expensive items attract more abuse.
	priceFactor := math.Min(price/1000, 1.0) * 0.1
	fraudProb := profile.fraudLikelihood*0.5 + cat.fraudRate*0.3 + priceFactor*0.2
	isFraud := rng.Float64() < fraudProb

	var daysSinceOrder int
	var reason domain.ReturnReason
	hour := rng.Intn(24)
	if isFraud {
		// Abusive returns cluster near the deadline or suspiciously early.
		if rng.Float64() < 0.5 {
			daysSinceOrder = 25 + rng.Intn(21)
		} else {
			daysSinceOrder = 1 + rng.Intn(3)
		}
		vague := []domain.ReturnReason{domain.ReasonChangedMind, domain.ReasonNotAsDescribed, domain.ReasonOther}
		reason = vague[rng.Intn(len(vague))]
		if rng.Float64() < 0.3 {
			oddHours := []int{0, 1, 2, 3, 4, 23}
			hour = oddHours[rng.Intn(len(oddHours))]
		}
	} else {
		daysSinceOrder = 3 + rng.Intn(23)
		reason = cat.commonReasons[rng.Intn(len(cat.commonReasons))]
	}

	bag := &features.Bag{
		BuyerReturnRate:     returnRate,
		BuyerTotalOrders:    float64(totalOrders),
		BuyerTotalReturns:   float64(totalReturns),
		BuyerAvgReviewScore: uniform(rng, profile.reviewScoreMin, profile.reviewScoreMax),
		BuyerAccountAgeDays: float64(profile.accountAgeMin + rng.Intn(profile.accountAgeMax-profile.accountAgeMin+1)),
		BuyerTotalSpend:     float64(totalOrders) * uniform(rng, 20, 400),

		ProductReturnRate:   cat.returnRate,
		ProductCategoryRisk: domain.CategoryRiskScore(cat.category),
		ProductPrice:        price,
		ProductPriceTier:    domain.PriceTierFor(price),

		DaysSinceOrder: float64(daysSinceOrder),
		OrderAmount:    price,
		ReturnReason:   reason,

		RequestHour:      float64(hour),
		RequestDayOfWeek: float64(rng.Intn(7)),
	}

	label := 1
	if isFraud {
		label = 0
	}
	return Sample{Bag: bag, Label: label}
}

func pickProfile(rng *rand.Rand) buyerProfile {
	r := rng.Float64()
	acc := 0.0
	for _, p := range buyerProfiles {
		acc += p.weight
		if r < acc {
			return p
		}
	}
	return buyerProfiles[len(buyerProfiles)-1]
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
