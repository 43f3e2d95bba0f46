package types

import "time"

// CacheCategory partitions cached entries and selects their default TTL.
type CacheCategory string

const (
	CategoryToken       CacheCategory = "token"
	CategoryMarketData  CacheCategory = "market_data"
	CategoryBuyingPower CacheCategory = "buying_power"
	CategoryOrderParams CacheCategory = "order_params"
)

// Default TTLs per category.
const (
	TokenTTL       = 3600 * time.Second
	MarketDataTTL  = 300 * time.Second
	BuyingPowerTTL = 60 * time.Second
	OrderParamsTTL = 30 * time.Second
)

// Categories lists every known category in display order.
var Categories = []CacheCategory{
	CategoryToken,
	CategoryMarketData,
	CategoryBuyingPower,
	CategoryOrderParams,
}

// DefaultTTL returns the TTL for a category, or zero when the category is unknown.
func (c CacheCategory) DefaultTTL() time.Duration {
	switch c {
	case CategoryToken:
		return TokenTTL
	case CategoryMarketData:
		return MarketDataTTL
	case CategoryBuyingPower:
		return BuyingPowerTTL
	case CategoryOrderParams:
		return OrderParamsTTL
	}
	return 0
}

func (c CacheCategory) Valid() bool { return c.DefaultTTL() > 0 }

// CategoryStats counts entries of one category.
type CategoryStats struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Expired int `json:"expired"`
}

// CacheStats is a point-in-time view of the cache contents.
type CacheStats struct {
	Backend        string                          `json:"backend"`
	TotalEntries   int                             `json:"total_entries"`
	ValidEntries   int                             `json:"valid_entries"`
	ExpiredEntries int                             `json:"expired_entries"`
	PerCategory    map[CacheCategory]CategoryStats `json:"per_category"`
}

// Add counts one entry into the stats.
func (s *CacheStats) Add(cat CacheCategory, expired bool) {
	if s.PerCategory == nil {
		s.PerCategory = make(map[CacheCategory]CategoryStats)
	}
	cs := s.PerCategory[cat]
	cs.Total++
	s.TotalEntries++
	if expired {
		cs.Expired++
		s.ExpiredEntries++
	} else {
		cs.Valid++
		s.ValidEntries++
	}
	s.PerCategory[cat] = cs
}
