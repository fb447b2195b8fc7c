package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"

	"coinmarket/scraper/internal/domain"
)

var DefaultTableSelectors = []string{"table.pricing-grid", "table#prices", "table"}

const descriptionLabel = "DESCRIPTION"

// entryIDPattern pulls the trailing numeric id out of a detail-page link,
// e.g. /coins/1878-8tf-1/12345 or /item.php?id=12345.
var entryIDPattern = regexp.MustCompile(`(?:[?&](?:id|item|coin)=|/)(\d+)(?:[/?#&]|$)`)

// Parser turns a catalog page into CatalogData. Candidate tables are located by
// trying each selector in order; the first table whose header row contains a
// recognizable grade label is taken as the pricing grid.
type Parser struct {
	selectors []string
}

func New(selectors []string) *Parser {
	if len(selectors) == 0 {
		selectors = DefaultTableSelectors
	}
	return &Parser{selectors: selectors}
}

// ParseTable is pure: identical html and arguments give identical output.
// A page without a usable table yields an empty catalog and a warning, not an error.
func (p *Parser) ParseTable(html, catalogID, catalogName, url string, scrapedAt time.Time) (*domain.CatalogData, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse HTML for catalog %s: %v", ErrParse, catalogID, err)
	}

	catalog := domain.NewCatalogData(catalogID, catalogName, url, scrapedAt)

	table, header := p.locateTable(doc)
	if table == nil {
		log.Warnf("⚠️ No pricing table found for catalog %s (%s)", catalogID, url)
		return catalog, nil
	}

	catalog.GradeColumns = header
	p.extractRows(table, header, catalog)

	log.Debugf("Parsed catalog %s: %d grade columns, %d coins", catalogID, len(header), len(catalog.Coins))
	return catalog, nil
}

func (p *Parser) locateTable(doc *goquery.Document) (*goquery.Selection, []string) {
	for _, selector := range p.selectors {
		var (
			found  *goquery.Selection
			header []string
		)
		doc.Find(selector).EachWithBreak(func(_ int, table *goquery.Selection) bool {
			_, labels := headerRow(table)
			if !hasGradeColumn(labels) {
				return true
			}
			found, header = table, labels
			return false
		})
		if found != nil {
			return found, header
		}
	}
	return nil, nil
}

func hasGradeColumn(labels []string) bool {
	for _, label := range labels {
		if IsGradeLabel(label) {
			return true
		}
	}
	return false
}

// headerRow returns the header row and its cleaned labels: the thead row if
// present, else the first row containing th cells, else the first row.
func headerRow(table *goquery.Selection) (*goquery.Selection, []string) {
	row := table.Find("thead tr").First()
	if row.Length() == 0 {
		row = table.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
			return tr.ChildrenFiltered("th").Length() > 0
		}).First()
	}
	if row.Length() == 0 {
		row = table.Find("tr").First()
	}

	var labels []string
	row.ChildrenFiltered("th, td").Each(func(_ int, cell *goquery.Selection) {
		labels = append(labels, cleanHeader(cell.Text()))
	})
	return row, labels
}

func (p *Parser) extractRows(table *goquery.Selection, header []string, catalog *domain.CatalogData) {
	headerNode, _ := headerRow(table)

	skipped := 0
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.IsSelection(headerNode) {
			return
		}

		cells := tr.ChildrenFiltered("td, th")
		if cells.Length() < 2 {
			return
		}

		first := cells.First()
		description, entryID := describe(first)
		if description == "" || strings.EqualFold(description, descriptionLabel) ||
			(len(header) > 0 && strings.EqualFold(description, header[0])) {
			skipped++
			return
		}

		normalizedID := domain.NormalizeID(description)
		if normalizedID == "" {
			skipped++
			return
		}

		grades := make(map[string]domain.GradePrices)
		cells.Each(func(i int, cell *goquery.Selection) {
			if i == 0 || i >= len(header) || !IsGradeLabel(header[i]) {
				return
			}
			if prices := parseCell(cell); len(prices) > 0 {
				grades[header[i]] = prices
			}
		})

		coin := domain.CoinEntry{
			CatalogID:    catalog.CatalogID,
			EntryID:      entryID,
			Description:  description,
			NormalizedID: normalizedID,
			Grades:       grades,
			ScrapedAt:    catalog.ScrapedAt,
		}
		if !coin.HasPrice() {
			skipped++
			return
		}

		if existing, dup := catalog.Coins[normalizedID]; dup {
			for grade, prices := range coin.Grades {
				if _, ok := existing.Grades[grade]; !ok {
					existing.Grades[grade] = prices
				}
			}
			return
		}
		catalog.Coins[normalizedID] = coin
	})

	if skipped > 0 {
		log.Debugf("Skipped %d rows without description or prices in catalog %s", skipped, catalog.CatalogID)
	}
}

// describe prefers the detail-page anchor text over the raw cell text.
func describe(cell *goquery.Selection) (string, string) {
	var entryID string

	text := cell.Text()
	if link := cell.Find("a").First(); link.Length() > 0 {
		if linkText := strings.TrimSpace(link.Text()); linkText != "" {
			text = linkText
		}
		if href, ok := link.Attr("href"); ok {
			if matches := entryIDPattern.FindAllStringSubmatch(href, -1); len(matches) > 0 {
				entryID = matches[len(matches)-1][1]
			}
		}
	}

	return strings.Join(strings.Fields(text), " "), entryID
}
