package parser

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinmarket/scraper/internal/domain"
)

var scrapedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func parse(t *testing.T, html string) *domain.CatalogData {
	t.Helper()
	catalog, err := New(nil).ParseTable(html, "101", "Morgan Dollars", "https://example.com/prices/catalog/101", scrapedAt)
	require.NoError(t, err)
	require.NotNil(t, catalog)
	return catalog
}

func TestParseTableBasic(t *testing.T) {
	html := `<html><body>
<table class="pricing-grid">
  <tr><th>Description</th><th>MS60</th><th>MS63</th></tr>
  <tr><td><a href="/coins/1878-8tf/12345">1878 8TF $1</a></td><td>$59.83</td><td>-</td></tr>
</table></body></html>`

	catalog := parse(t, html)

	assert.Equal(t, "101", catalog.CatalogID)
	assert.Equal(t, "Morgan Dollars", catalog.Name)
	assert.Equal(t, []string{"DESCRIPTION", "MS60", "MS63"}, catalog.GradeColumns)
	require.Len(t, catalog.Coins, 1)

	coin, ok := catalog.Coins["1878-8tf-1"]
	require.True(t, ok)
	assert.Equal(t, "1878 8TF $1", coin.Description)
	assert.Equal(t, "12345", coin.EntryID)
	assert.Equal(t, "101", coin.CatalogID)
	assert.Equal(t, scrapedAt, coin.ScrapedAt)

	require.Contains(t, coin.Grades, "MS60")
	assert.True(t, decimal.RequireFromString("59.83").Equal(coin.Grades["MS60"][domain.PriceWholesale].Price))
	assert.NotContains(t, coin.Grades, "MS63")
}

func TestParseTableRowCounts(t *testing.T) {
	t.Run("every priced row becomes a coin", func(t *testing.T) {
		html := `<table>
<tr><th>Description</th><th>VF20</th><th>MS63</th></tr>
<tr><td>1881-S $1</td><td>40</td><td>80</td></tr>
<tr><td>1882-S $1</td><td>41</td><td>81</td></tr>
<tr><td>1883-O $1</td><td>42</td><td>82</td></tr>
</table>`
		assert.Len(t, parse(t, html).Coins, 3)
	})

	t.Run("rows without any price are dropped", func(t *testing.T) {
		html := `<table>
<tr><th>Description</th><th>VF20</th><th>MS63</th></tr>
<tr><td>1881-S $1</td><td>40</td><td>80</td></tr>
<tr><td>1882-S $1</td><td>-</td><td></td></tr>
<tr><td>1883-O $1</td><td>42</td><td>82</td></tr>
<tr><td>1884-CC $1</td><td>N/A</td><td>0</td></tr>
<tr><td>1885 $1</td><td></td><td>85.50</td></tr>
</table>`
		catalog := parse(t, html)
		assert.Len(t, catalog.Coins, 3)
		assert.NotContains(t, catalog.Coins, "1882-s-1")
		assert.NotContains(t, catalog.Coins, "1884-cc-1")
	})

	t.Run("repeated header rows are skipped", func(t *testing.T) {
		html := `<table>
<tr><th>Description</th><th>MS63</th></tr>
<tr><td>1881-S $1</td><td>80</td></tr>
<tr><td>Description</td><td>MS63</td></tr>
<tr><td></td><td>99</td></tr>
<tr><td>1882-S $1</td><td>81</td></tr>
</table>`
		catalog := parse(t, html)
		assert.Len(t, catalog.Coins, 2)
		assert.NotContains(t, catalog.Coins, "description")
	})
}

func TestParseTableSkipsUnrelatedTables(t *testing.T) {
	html := `<body>
<table id="nav"><tr><th>Menu</th><th>Links</th></tr><tr><td>Home</td><td>About</td></tr></table>
<table>
  <thead><tr><th>Coin</th><th>AU58</th><th>MS-65</th></tr></thead>
  <tbody><tr><td>1921 $1</td><td>30</td><td>120</td></tr></tbody>
</table></body>`

	catalog := parse(t, html)
	assert.Equal(t, []string{"COIN", "AU58", "MS-65"}, catalog.GradeColumns)
	require.Contains(t, catalog.Coins, "1921-1")
	assert.Len(t, catalog.Coins["1921-1"].Grades, 2)
}

func TestParseTableSelectorOrder(t *testing.T) {
	html := `<body>
<table><tr><th>Description</th><th>MS60</th></tr><tr><td>Decoy</td><td>1</td></tr></table>
<table id="prices"><tr><th>Description</th><th>MS60</th></tr><tr><td>Real</td><td>2</td></tr></table>
</body>`

	catalog := parse(t, html)
	require.Len(t, catalog.Coins, 1)
	assert.Contains(t, catalog.Coins, "real")
}

func TestParseTableTypedCells(t *testing.T) {
	html := `<table class="pricing-grid">
<tr><th>Description</th><th>MS63</th><th>MS65</th></tr>
<tr>
  <td>1880-S $1</td>
  <td>
    <span data-type="wholesale" title="Previous: $57.00 on 2024-01-05">60.00</span>
    <span class="price-cac">64.00</span>
    <span class="price-pcgs" data-previous="70" data-updated="2024-02-10">72.50</span>
    <span class="price-ngc">-</span>
  </td>
  <td><span class="price-label">n/a</span></td>
</tr>
</table>`

	catalog := parse(t, html)
	coin, ok := catalog.Coins["1880-s-1"]
	require.True(t, ok)

	prices := coin.Grades["MS63"]
	require.Len(t, prices, 3)

	wholesale := prices[domain.PriceWholesale]
	assert.True(t, decimal.NewFromInt(60).Equal(wholesale.Price))
	require.NotNil(t, wholesale.PreviousPrice)
	assert.True(t, decimal.NewFromInt(57).Equal(*wholesale.PreviousPrice))
	require.NotNil(t, wholesale.UpdatedAt)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), *wholesale.UpdatedAt)

	assert.True(t, decimal.NewFromInt(64).Equal(prices[domain.PriceCAC].Price))
	assert.Nil(t, prices[domain.PriceCAC].PreviousPrice)

	pcgs := prices[domain.PricePCGS]
	assert.True(t, decimal.RequireFromString("72.5").Equal(pcgs.Price))
	require.NotNil(t, pcgs.PreviousPrice)
	assert.True(t, decimal.NewFromInt(70).Equal(*pcgs.PreviousPrice))
	require.NotNil(t, pcgs.UpdatedAt)

	assert.NotContains(t, prices, domain.PriceNGC)
	assert.NotContains(t, coin.Grades, "MS65")
}

func TestParseTableDuplicateRowsMerge(t *testing.T) {
	html := `<table>
<tr><th>Description</th><th>MS60</th><th>MS63</th></tr>
<tr><td>1878 8TF $1</td><td>50</td><td></td></tr>
<tr><td>1878 8TF  $1</td><td>55</td><td>90</td></tr>
</table>`

	catalog := parse(t, html)
	require.Len(t, catalog.Coins, 1)

	coin := catalog.Coins["1878-8tf-1"]
	assert.True(t, decimal.NewFromInt(50).Equal(coin.Grades["MS60"][domain.PriceWholesale].Price))
	assert.True(t, decimal.NewFromInt(90).Equal(coin.Grades["MS63"][domain.PriceWholesale].Price))
}

func TestParseTableMissingTable(t *testing.T) {
	catalog := parse(t, `<html><body><p>Please log in to view prices.</p></body></html>`)
	assert.True(t, catalog.IsEmpty())
	assert.Empty(t, catalog.GradeColumns)
	assert.Equal(t, "101", catalog.CatalogID)
}

func TestParseTableDeterministic(t *testing.T) {
	html := `<table><tr><th>Description</th><th>MS60</th></tr><tr><td>1899 $1</td><td>1,250.00</td></tr></table>`

	first := parse(t, html)
	second := parse(t, html)
	assert.Equal(t, first, second)
	assert.True(t, decimal.NewFromInt(1250).Equal(first.Coins["1899-1"].Grades["MS60"][domain.PriceWholesale].Price))
}

func TestIsGradeLabel(t *testing.T) {
	for _, label := range []string{"MS60", "MS-63", "PF65", "PR70DCAM", "AU58+", "VF20", "G4", "ms65rd"} {
		assert.True(t, IsGradeLabel(label), label)
	}
	for _, label := range []string{"DESCRIPTION", "COIN", "MINTAGE", "MS", "YEAR 1921"} {
		assert.False(t, IsGradeLabel(label), label)
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"$59.83", "59.83", true},
		{" 1,250 ", "1250", true},
		{"0", "", false},
		{"-", "", false},
		{"--", "", false},
		{"N/A", "", false},
		{"12.5.1", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parsePrice(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, decimal.RequireFromString(tt.want).Equal(got))
			}
		})
	}
}
