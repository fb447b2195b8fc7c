package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"coinmarket/scraper/internal/domain"
)

var (
	pricePattern = regexp.MustCompile(`^\d+(\.\d+)?$`)

	// Tooltip form: "Previous: $57.00 on 2024-01-05" or "Prev $57 (01/05/2024)".
	previousPattern = regexp.MustCompile(`(?i)prev(?:ious)?\.?:?\s*\$?\s*([\d,]+(?:\.\d+)?)`)
	datePattern     = regexp.MustCompile(`(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4}|[A-Z][a-z]{2} \d{1,2}, \d{4})`)

	dateLayouts = []string{"2006-01-02", "01/02/2006", "1/2/2006", "Jan 2, 2006"}
)

// parseCell extracts the price sub-values of one grade cell. Typed sub-elements
// are identified by data-type or a price-<type> class; a cell without any is
// read as a single wholesale value.
func parseCell(cell *goquery.Selection) domain.GradePrices {
	prices := make(domain.GradePrices)

	typed := false
	cell.Find("[data-type], [class*='price-']").Each(func(_ int, s *goquery.Selection) {
		priceType, ok := priceTypeOf(s)
		if !ok {
			return
		}
		typed = true

		if _, seen := prices[priceType]; seen {
			return
		}
		if entry, ok := parseSubValue(s); ok {
			prices[priceType] = entry
		}
	})

	if !typed {
		if entry, ok := parseSubValue(cell); ok {
			prices[domain.PriceWholesale] = entry
		}
	}

	return prices
}

func priceTypeOf(s *goquery.Selection) (domain.PriceType, bool) {
	if dataType, ok := s.Attr("data-type"); ok {
		return domain.ParsePriceType(dataType)
	}

	class, _ := s.Attr("class")
	for _, c := range strings.Fields(class) {
		if name, found := strings.CutPrefix(c, "price-"); found {
			if priceType, ok := domain.ParsePriceType(name); ok {
				return priceType, true
			}
		}
	}
	return "", false
}

// parseSubValue accepts a value only when it parses to a strictly positive number.
func parseSubValue(s *goquery.Selection) (domain.GradePriceEntry, bool) {
	price, ok := parsePrice(s.Text())
	if !ok {
		return domain.GradePriceEntry{}, false
	}

	entry := domain.GradePriceEntry{Price: price}

	title, _ := s.Attr("title")
	if previous, ok := s.Attr("data-previous"); ok {
		if p, ok := parsePrice(previous); ok {
			entry.PreviousPrice = &p
		}
	} else if m := previousPattern.FindStringSubmatch(title); m != nil {
		if p, ok := parsePrice(m[1]); ok {
			entry.PreviousPrice = &p
		}
	}

	if updated, ok := s.Attr("data-updated"); ok {
		entry.UpdatedAt = parseDate(updated)
	} else if m := datePattern.FindStringSubmatch(title); m != nil {
		entry.UpdatedAt = parseDate(m[1])
	}

	return entry, true
}

func parsePrice(text string) (decimal.Decimal, bool) {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(text)
	cleaned = strings.Join(strings.Fields(cleaned), "")
	if !pricePattern.MatchString(cleaned) {
		return decimal.Decimal{}, false
	}

	price, err := decimal.NewFromString(cleaned)
	if err != nil || !price.IsPositive() {
		return decimal.Decimal{}, false
	}
	return price, true
}

func parseDate(text string) *time.Time {
	text = strings.TrimSpace(text)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return &t
		}
	}
	return nil
}
