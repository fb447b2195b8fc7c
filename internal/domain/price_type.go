package domain

import "strings"

type PriceType string

func (p PriceType) String() string {
	return string(p)
}

const (
	PriceWholesale PriceType = "wholesale" // Dealer-to-dealer baseline bid
	PriceCAC       PriceType = "cac"       // Premium-certified (sticker) value
	PricePCGS      PriceType = "pcgs"      // First third-party grader
	PriceNGC       PriceType = "ngc"       // Second third-party grader
)

var PriceTypes = []PriceType{
	PriceWholesale,
	PriceCAC,
	PricePCGS,
	PriceNGC,
}

// Tag is the suffix used when a price type is surfaced as its own grade entry.
func (p PriceType) Tag() string {
	switch p {
	case PriceWholesale:
		return "Wholesale"
	case PriceCAC:
		return "CAC"
	case PricePCGS:
		return "PCGS"
	case PriceNGC:
		return "NGC"
	default:
		return strings.ToUpper(string(p))
	}
}

// ParsePriceType maps a markup label onto a known price type.
func ParsePriceType(s string) (PriceType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wholesale", "bid", "grey", "greysheet":
		return PriceWholesale, true
	case "cac", "premium":
		return PriceCAC, true
	case "pcgs":
		return PricePCGS, true
	case "ngc":
		return PriceNGC, true
	default:
		return "", false
	}
}
