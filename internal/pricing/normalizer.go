package pricing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"coinmarket/scraper/internal/config"
	"coinmarket/scraper/internal/domain"
)

var defaultPriority = []domain.PriceType{
	domain.PriceWholesale,
	domain.PricePCGS,
	domain.PriceNGC,
	domain.PriceCAC,
}

// independent price types that can stand in as real low/high bounds.
var boundTypes = []domain.PriceType{domain.PricePCGS, domain.PriceNGC}

// Normalizer derives provider-facing MarketPriceRecords from stored coin entries.
type Normalizer struct {
	source   string
	prefix   string
	priority []domain.PriceType

	lowFactor        decimal.Decimal
	highFactor       decimal.Decimal
	premiumThreshold decimal.Decimal
}

func NewNormalizer(source, itemPrefix string, cfg config.PricingConfig) *Normalizer {
	var priority []domain.PriceType
	for _, name := range cfg.PrimaryPriority {
		priceType, ok := domain.ParsePriceType(name)
		if !ok {
			log.Warnf("⚠️ Ignoring unknown price type %q in pricing.primary_priority", name)
			continue
		}
		priority = append(priority, priceType)
	}
	if len(priority) == 0 {
		priority = defaultPriority
	}

	return &Normalizer{
		source:           source,
		prefix:           itemPrefix,
		priority:         priority,
		lowFactor:        decimal.NewFromFloat(cfg.LowFactor),
		highFactor:       decimal.NewFromFloat(cfg.HighFactor),
		premiumThreshold: decimal.NewFromFloat(cfg.PremiumThreshold),
	}
}

func (n *Normalizer) Prefix() string {
	return n.prefix
}

// Record converts one coin entry. It is recomputed on every call and never cached.
func (n *Normalizer) Record(catalog *domain.CatalogData, coin domain.CoinEntry) *domain.MarketPriceRecord {
	record := &domain.MarketPriceRecord{
		ItemID:       ItemID(n.prefix, coin.CatalogID, coin.NormalizedID),
		Name:         coin.Description,
		Source:       n.source,
		GradedPrices: make(map[string]domain.PriceBand, len(coin.Grades)),
		LastUpdated:  coin.ScrapedAt,
	}
	if catalog != nil {
		record.Category = catalog.Name
		record.SourceURL = catalog.SourceURL
	}

	grades := make([]string, 0, len(coin.Grades))
	for grade := range coin.Grades {
		grades = append(grades, grade)
	}
	sort.Strings(grades)

	for _, grade := range grades {
		prices := coin.Grades[grade]

		primaryType, primary, ok := n.primary(prices)
		if !ok {
			continue
		}
		record.GradedPrices[grade] = n.band(prices, primaryType, primary)

		if premium, ok := n.premium(prices, primaryType, primary); ok {
			record.GradedPrices[fmt.Sprintf("%s %s", grade, domain.PriceCAC.Tag())] = premium
		}
	}

	return record
}

// primary picks the first available price type in priority order.
func (n *Normalizer) primary(prices domain.GradePrices) (domain.PriceType, decimal.Decimal, bool) {
	for _, priceType := range n.priority {
		if entry, ok := prices[priceType]; ok && entry.Price.IsPositive() {
			return priceType, entry.Price, true
		}
	}
	return "", decimal.Decimal{}, false
}

// band prefers independently published figures for low and high, falling back
// to the configured factors around the primary.
func (n *Normalizer) band(prices domain.GradePrices, primaryType domain.PriceType, primary decimal.Decimal) domain.PriceBand {
	low := primary.Mul(n.lowFactor)
	high := primary.Mul(n.highFactor)

	var bounds []decimal.Decimal
	for _, priceType := range boundTypes {
		if priceType == primaryType {
			continue
		}
		if entry, ok := prices[priceType]; ok && entry.Price.IsPositive() {
			bounds = append(bounds, entry.Price)
		}
	}

	if len(bounds) > 0 {
		if lowest := decimal.Min(bounds[0], bounds[1:]...); lowest.LessThan(primary) {
			low = lowest
		}
		if highest := decimal.Max(bounds[0], bounds[1:]...); highest.GreaterThan(primary) {
			high = highest
		}
	}

	return domain.PriceBand{
		Low:  low.Round(2),
		Mid:  primary.Round(2),
		High: high.Round(2),
	}
}

// premium emits the certified-premium figure as its own grade when it differs
// from the primary by more than the relative threshold.
func (n *Normalizer) premium(prices domain.GradePrices, primaryType domain.PriceType, primary decimal.Decimal) (domain.PriceBand, bool) {
	if primaryType == domain.PriceCAC {
		return domain.PriceBand{}, false
	}

	entry, ok := prices[domain.PriceCAC]
	if !ok || !entry.Price.IsPositive() {
		return domain.PriceBand{}, false
	}

	diff := entry.Price.Sub(primary).Abs().Div(primary)
	if !diff.GreaterThan(n.premiumThreshold) {
		return domain.PriceBand{}, false
	}

	cac := entry.Price
	return domain.PriceBand{
		Low:  cac.Mul(n.lowFactor).Round(2),
		Mid:  cac.Round(2),
		High: cac.Mul(n.highFactor).Round(2),
	}, true
}
