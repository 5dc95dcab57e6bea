// Package billing exposes the plan catalog the expansion detector
// prices upsell opportunities against. List prices default to the
// static catalog and can be refreshed from Stripe.
package billing

import (
	"fmt"
	"log"
	"sync"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/price"
)

// Plan describes one subscription tier
type Plan struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	StripePriceID string `json:"stripe_price_id"`
	MonthlyPrice  int64  `json:"monthly_price"` // in cents
	MaxSeats      int    `json:"max_seats"`
	MaxUsageUnits int64  `json:"max_usage_units"`
}

// Catalog holds the ordered plan tiers
type Catalog struct {
	mu    sync.RWMutex
	tiers []Plan
	byID  map[string]Plan
}

// NewCatalog builds a catalog from ordered tiers, lowest first.
func NewCatalog(tiers []Plan) *Catalog {
	byID := make(map[string]Plan, len(tiers))
	for _, p := range tiers {
		byID[p.ID] = p
	}
	return &Catalog{tiers: tiers, byID: byID}
}

// DefaultCatalog returns the standard plan ladder.
func DefaultCatalog() *Catalog {
	return NewCatalog([]Plan{
		{ID: "starter", Name: "Starter", StripePriceID: "price_starter_monthly", MonthlyPrice: 4900, MaxSeats: 5, MaxUsageUnits: 10000},
		{ID: "growth", Name: "Growth", StripePriceID: "price_growth_monthly", MonthlyPrice: 19900, MaxSeats: 25, MaxUsageUnits: 100000},
		{ID: "scale", Name: "Scale", StripePriceID: "price_scale_monthly", MonthlyPrice: 49900, MaxSeats: 100, MaxUsageUnits: 1000000},
		{ID: "enterprise", Name: "Enterprise", StripePriceID: "price_enterprise_monthly", MonthlyPrice: 149900, MaxSeats: 1000, MaxUsageUnits: 10000000},
	})
}

// GetPlan looks up a plan by identifier.
func (c *Catalog) GetPlan(id string) (Plan, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.byID[id]
	return p, ok
}

// NextTier returns the plan one tier above the given one, false at the
// top of the ladder or for unknown plans.
func (c *Catalog) NextTier(id string) (Plan, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i, p := range c.tiers {
		if p.ID == id {
			if i+1 < len(c.tiers) {
				return c.tiers[i+1], true
			}
			return Plan{}, false
		}
	}
	return Plan{}, false
}

// AnnualDeltaCents is the yearly revenue delta between two plans,
// computed from monthly list prices.
func (c *Catalog) AnnualDeltaCents(currentID, recommendedID string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	current, ok := c.byID[currentID]
	if !ok {
		return 0, fmt.Errorf("unknown plan %s", currentID)
	}
	recommended, ok := c.byID[recommendedID]
	if !ok {
		return 0, fmt.Errorf("unknown plan %s", recommendedID)
	}

	return 12 * (recommended.MonthlyPrice - current.MonthlyPrice), nil
}

// RefreshPrices pulls current list prices from Stripe. A failed lookup
// for a single plan keeps that plan's static price and continues.
func (c *Catalog) RefreshPrices(stripeKey string) error {
	stripe.Key = stripeKey

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, p := range c.tiers {
		if p.StripePriceID == "" {
			continue
		}
		sp, err := price.Get(p.StripePriceID, nil)
		if err != nil {
			log.Printf("Failed to refresh price for plan %s: %v", p.ID, err)
			continue
		}
		c.tiers[i].MonthlyPrice = sp.UnitAmount
		c.byID[p.ID] = c.tiers[i]
	}

	return nil
}
