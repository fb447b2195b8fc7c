package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// GradePriceEntry is one published price sub-value. Price is always strictly positive;
// an unpublished value is represented by the absence of the entry.
type GradePriceEntry struct {
	Price         decimal.Decimal  `json:"price"`
	PreviousPrice *decimal.Decimal `json:"previous_price,omitempty"`
	UpdatedAt     *time.Time       `json:"updated_at,omitempty"`
}

// GradePrices holds the sub-values published for one grade cell.
type GradePrices map[PriceType]GradePriceEntry

type CoinEntry struct {
	CatalogID    string                 `json:"catalog_id"`
	EntryID      string                 `json:"entry_id,omitempty"`
	Description  string                 `json:"description"`
	NormalizedID string                 `json:"normalized_id"`
	Grades       map[string]GradePrices `json:"grades"`
	ScrapedAt    time.Time              `json:"scraped_at"`
}

// HasPrice reports whether at least one grade carries at least one price.
func (c CoinEntry) HasPrice() bool {
	for _, prices := range c.Grades {
		if len(prices) > 0 {
			return true
		}
	}
	return false
}

// CatalogData is replaced wholesale on every refresh and must be treated as
// read-only once handed to the catalog store.
type CatalogData struct {
	CatalogID    string               `json:"catalog_id"`
	Name         string               `json:"name"`
	SourceURL    string               `json:"source_url"`
	GradeColumns []string             `json:"grade_columns"`
	Coins        map[string]CoinEntry `json:"coins"`
	ScrapedAt    time.Time            `json:"scraped_at"`
}

func NewCatalogData(catalogID, name, sourceURL string, scrapedAt time.Time) *CatalogData {
	return &CatalogData{
		CatalogID: catalogID,
		Name:      name,
		SourceURL: sourceURL,
		Coins:     make(map[string]CoinEntry),
		ScrapedAt: scrapedAt,
	}
}

// IsEmpty reports whether nothing priceable was extracted.
func (c *CatalogData) IsEmpty() bool {
	return c == nil || len(c.Coins) == 0
}
