package pricing_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/pricing"
)

func mustMoney(t *testing.T, value string) pricing.Money {
	t.Helper()
	money, err := pricing.ParseMoney(value)
	require.NoError(t, err)
	return money
}

func twoTierTable(t *testing.T) pricing.TierTable {
	t.Helper()
	table, err := pricing.NewTierTable(
		pricing.Unbounded(50, mustMoney(t, "1.50")),
		pricing.Bounded(1, 49, mustMoney(t, "2.00")),
	)
	require.NoError(t, err)
	return table
}

func TestResolvePicksMatchingTier(t *testing.T) {
	table := twoTierTable(t)
	base := mustMoney(t, "3.00")

	tests := []struct {
		quantity int
		want     string
	}{
		{quantity: 1, want: "2.00"},
		{quantity: 49, want: "2.00"},
		{quantity: 50, want: "1.50"},
		{quantity: 200, want: "1.50"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, pricing.Resolve(table, base, tt.quantity).String(), "quantity %d", tt.quantity)
	}
}

func TestTablesAreSortedByMinimum(t *testing.T) {
	tiers := twoTierTable(t).Tiers()
	require.Len(t, tiers, 2)
	assert.Equal(t, 1, tiers[0].MinQuantity)
	assert.Equal(t, 50, tiers[1].MinQuantity)
}

func TestAddRejectsOverlapAndLeavesTableUnchanged(t *testing.T) {
	table := twoTierTable(t)

	err := table.Add(pricing.Bounded(40, 60, mustMoney(t, "1.80")))
	require.ErrorIs(t, err, pricing.ErrInvalidPricingTier)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, "2.00", pricing.Resolve(table, 0, 45).String())
}

func TestAddRejectsInvalidTiers(t *testing.T) {
	tests := []struct {
		name string
		tier pricing.Tier
	}{
		{name: "zero-min", tier: pricing.Bounded(0, 10, 100)},
		{name: "negative-min", tier: pricing.Unbounded(-5, 100)},
		{name: "max-equals-min", tier: pricing.Bounded(10, 10, 100)},
		{name: "max-below-min", tier: pricing.Bounded(10, 5, 100)},
		{name: "zero-price", tier: pricing.Unbounded(1, 0)},
		{name: "negative-price", tier: pricing.Unbounded(1, -1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var table pricing.TierTable
			require.ErrorIs(t, table.Add(tt.tier), pricing.ErrInvalidPricingTier)
			assert.Equal(t, 0, table.Len())
		})
	}
}

func TestNewTierTableIsAllOrNothing(t *testing.T) {
	_, err := pricing.NewTierTable(
		pricing.Bounded(1, 10, 500),
		pricing.Unbounded(5, 400),
	)
	require.ErrorIs(t, err, pricing.ErrInvalidPricingTier)
}

func TestTwoUnboundedTiersAlwaysOverlap(t *testing.T) {
	_, err := pricing.NewTierTable(
		pricing.Unbounded(1, 500),
		pricing.Unbounded(1000, 400),
	)
	require.ErrorIs(t, err, pricing.ErrInvalidPricingTier)
}

func TestResolveIsTotal(t *testing.T) {
	base := mustMoney(t, "4.25")
	tables := map[string]pricing.TierTable{
		"empty": {},
		"gapped": func() pricing.TierTable {
			table, err := pricing.NewTierTable(pricing.Bounded(10, 20, 300), pricing.Unbounded(100, 200))
			require.NoError(t, err)
			return table
		}(),
		"two-tier": twoTierTable(t),
	}
	for name, table := range tables {
		for quantity := 1; quantity <= 250; quantity++ {
			matches := 0
			for _, tier := range table.Tiers() {
				if tier.Contains(quantity) {
					matches++
				}
			}
			require.LessOrEqual(t, matches, 1, "%s: quantity %d matched %d tiers", name, quantity, matches)
			price := pricing.Resolve(table, base, quantity)
			require.Positive(t, price.Int64(), "%s: quantity %d", name, quantity)
			if matches == 0 {
				require.Equal(t, base, price, "%s: quantity %d should fall back to base price", name, quantity)
			}
		}
	}
}

func TestTierNonOverlapHoldsPairwise(t *testing.T) {
	table, err := pricing.NewTierTable(
		pricing.Bounded(1, 9, 900),
		pricing.Bounded(10, 99, 800),
		pricing.Bounded(100, 999, 700),
		pricing.Unbounded(1000, 600),
	)
	require.NoError(t, err)
	tiers := table.Tiers()
	for i := range tiers {
		for j := range tiers {
			if i == j {
				continue
			}
			assert.False(t, tiers[i].Overlaps(tiers[j]), "tiers %d and %d overlap", i, j)
		}
	}
}

func TestQuoteLineUsesIntegerCents(t *testing.T) {
	table, err := pricing.NewTierTable(pricing.Unbounded(1, mustMoney(t, "0.10")))
	require.NoError(t, err)

	quote, err := pricing.QuoteLine(table, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, "0.30", quote.LineTotal.String())
	assert.True(t, quote.TierMatch)

	quote, err = pricing.QuoteLine(table, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, "10.00", quote.LineTotal.String())
}

func TestQuoteLineRejectsOverflowingTotals(t *testing.T) {
	table, err := pricing.NewTierTable()
	require.NoError(t, err)

	_, err = pricing.QuoteLine(table, mustMoney(t, "3.00"), math.MaxInt64/100)
	require.ErrorIs(t, err, pricing.ErrAmountOverflow)

	quote, err := pricing.QuoteLine(table, mustMoney(t, "3.00"), 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, "3000000.00", quote.LineTotal.String())
}

func TestMoneyArithmeticDetectsOverflow(t *testing.T) {
	_, err := pricing.Cents(math.MaxInt64).Times(2)
	require.ErrorIs(t, err, pricing.ErrAmountOverflow)
	_, err = pricing.Cents(-math.MaxInt64).Times(3)
	require.ErrorIs(t, err, pricing.ErrAmountOverflow)
	_, err = pricing.Cents(math.MaxInt64).Plus(pricing.Cents(1))
	require.ErrorIs(t, err, pricing.ErrAmountOverflow)

	product, err := pricing.Cents(150).Times(60)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), product.Int64())
	sum, err := product.Plus(pricing.Cents(-1000))
	require.NoError(t, err)
	assert.Equal(t, int64(8000), sum.Int64())
}

func TestParseMoney(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{input: "2", want: 200},
		{input: "2.5", want: 250},
		{input: "2.05", want: 205},
		{input: " 0.99 ", want: 99},
		{input: ".75", want: 75},
		{input: "-1.10", want: -110},
		{input: "2.005", wantErr: true},
		{input: "2.", wantErr: true},
		{input: "abc", wantErr: true},
		{input: "1.+5", wantErr: true},
		{input: "++1", wantErr: true},
		{input: "1.-5", wantErr: true},
		{input: "+-1", wantErr: true},
		{input: "1_000", wantErr: true},
		{input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			money, err := pricing.ParseMoney(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, pricing.ErrInvalidMoney)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, money.Int64())
		})
	}
}

func TestMoneyJSONAcceptsStringsAndNumbers(t *testing.T) {
	var tier pricing.Tier
	require.NoError(t, json.Unmarshal([]byte(`{"minQuantity":1,"maxQuantity":null,"unitPrice":1.1}`), &tier))
	assert.Equal(t, int64(110), tier.UnitPrice.Int64())
	assert.Nil(t, tier.MaxQuantity)

	require.NoError(t, json.Unmarshal([]byte(`{"minQuantity":1,"maxQuantity":49,"unitPrice":"2.00"}`), &tier))
	assert.Equal(t, int64(200), tier.UnitPrice.Int64())
	require.NotNil(t, tier.MaxQuantity)
	assert.Equal(t, 49, *tier.MaxQuantity)

	encoded, err := json.Marshal(pricing.Cents(150))
	require.NoError(t, err)
	assert.Equal(t, `"1.50"`, string(encoded))
}
