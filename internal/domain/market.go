package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PriceBand struct {
	Low  decimal.Decimal `json:"low"`
	Mid  decimal.Decimal `json:"mid"`
	High decimal.Decimal `json:"high"`
}

// MarketPriceRecord is the provider-agnostic view of a coin entry. It is
// derived on demand and never persisted.
type MarketPriceRecord struct {
	ItemID       string               `json:"item_id"`
	Name         string               `json:"name"`
	Category     string               `json:"category"`
	Source       string               `json:"source"`
	SourceURL    string               `json:"source_url"`
	GradedPrices map[string]PriceBand `json:"graded_prices"`
	LastUpdated  time.Time            `json:"last_updated"`
}
