package pricing

import "strings"

// ItemID builds the composite provider id <prefix>-<catalogId>-<normalizedId>.
func ItemID(prefix, catalogID, normalizedID string) string {
	return prefix + "-" + catalogID + "-" + normalizedID
}

// ParseItemID splits an item id produced by ItemID. Catalog ids never contain
// a hyphen, so everything after the second separator is the normalized id.
func ParseItemID(prefix, itemID string) (catalogID, normalizedID string, ok bool) {
	rest, found := strings.CutPrefix(itemID, prefix+"-")
	if !found {
		return "", "", false
	}

	parts := strings.SplitN(rest, "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
