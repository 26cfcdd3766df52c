package transform

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phoenix-network/phoenix-pipeline/models"
)

const (
	weth = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	usdc = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	usdt = "0xdac17f958d2ee523a2206206994597c13d831ec7"
	wbtc = "0x2260fac5e5542a773aa44fbcfedf7c193bc2c599"
)

func record(txHash, token0, token1, amount0, amount1 string) models.SwapRecord {
	return models.SwapRecord{
		TxHash:      txHash,
		BlockNumber: 100,
		Token0:      token0,
		Token1:      token1,
		Amount0Raw:  decimal.RequireFromString(amount0),
		Amount1Raw:  decimal.RequireFromString(amount1),
	}
}

func prices(pairs ...interface{}) map[string]decimal.Decimal {
	m := make(map[string]decimal.Decimal)
	for i := 0; i < len(pairs); i += 2 {
		m[pairs[i].(string)] = decimal.NewFromFloat(pairs[i+1].(float64))
	}
	return m
}

func TestEnrichStableSideVolume(t *testing.T) {
	e := NewEnricher(nil, nil)

	// 1 WETH in, 2000 USDC out. Exactly one stablecoin, so the volume
	// is the stable side, not the sum.
	recs := []models.SwapRecord{
		record("0xaaa", weth, usdc, "1000000000000000000", "-2000000000"),
	}

	enriched, skipped := e.Enrich(recs, prices(weth, 1999.0, usdc, 1.0))
	require.Len(t, enriched, 1)
	assert.Zero(t, skipped)
	assert.True(t, enriched[0].USDVolume.Equal(decimal.NewFromInt(2000)),
		"expected 2000, got %s", enriched[0].USDVolume)
}

func TestEnrichBothStableCountsOneSide(t *testing.T) {
	e := NewEnricher(nil, nil)

	recs := []models.SwapRecord{
		record("0xbbb", usdc, usdt, "1000000000", "-999000000"),
	}

	enriched, skipped := e.Enrich(recs, prices(usdc, 1.0, usdt, 1.0))
	require.Len(t, enriched, 1)
	assert.Zero(t, skipped)
	// Both sides represent the same value; summing would double count.
	assert.True(t, enriched[0].USDVolume.Equal(decimal.NewFromInt(1000)),
		"expected 1000, got %s", enriched[0].USDVolume)
}

func TestEnrichBilateralVolume(t *testing.T) {
	e := NewEnricher(nil, nil)

	// 1 WETH for 0.05 WBTC, neither stable: both sides count.
	recs := []models.SwapRecord{
		record("0xccc", weth, wbtc, "1000000000000000000", "-5000000"),
	}

	enriched, skipped := e.Enrich(recs, prices(weth, 2000.0, wbtc, 40000.0))
	require.Len(t, enriched, 1)
	assert.Zero(t, skipped)
	assert.True(t, enriched[0].USDVolume.Equal(decimal.NewFromInt(4000)),
		"expected 4000, got %s", enriched[0].USDVolume)
}

func TestEnrichSkipsUnresolvedPrices(t *testing.T) {
	e := NewEnricher(nil, nil)

	recs := []models.SwapRecord{
		record("0xaaa", weth, usdc, "1000000000000000000", "-2000000000"),
		record("0xbbb", weth, "0x1111111111111111111111111111111111111111", "1", "1"),
	}

	enriched, skipped := e.Enrich(recs, prices(weth, 2000.0, usdc, 1.0))
	require.Len(t, enriched, 1)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, "0xaaa", enriched[0].TxHash)

	// Zero volume would misrepresent real activity as none; the swap
	// must be absent, not zeroed.
	for _, swap := range enriched {
		assert.False(t, swap.USDVolume.IsZero())
	}
}

func TestEnrichUnknownTokenDefaultsTo18Decimals(t *testing.T) {
	e := NewEnricher(nil, nil)

	unknown := "0x2222222222222222222222222222222222222222"
	recs := []models.SwapRecord{
		record("0xddd", unknown, weth, "2000000000000000000", "-1000000000000000000"),
	}

	enriched, skipped := e.Enrich(recs, prices(unknown, 10.0, weth, 2000.0))
	require.Len(t, enriched, 1)
	assert.Zero(t, skipped)
	// 2 tokens * $10 + 1 WETH * $2000
	assert.True(t, enriched[0].USDVolume.Equal(decimal.NewFromInt(2020)),
		"expected 2020, got %s", enriched[0].USDVolume)
}

func TestEnrichSymbolIdentifiersApplyStableSideRule(t *testing.T) {
	e := NewEnricher(nil, nil)

	// Same swap as the address-keyed case, identified by symbols:
	// 1 WETH for 2000 USDC. The stable-side rule must apply here too,
	// not the bilateral sum.
	recs := []models.SwapRecord{
		record("0xfff", "weth", "usdc", "1000000000000000000", "-2000000000"),
	}

	enriched, skipped := e.Enrich(recs, prices("weth", 1999.0, "usdc", 1.0))
	require.Len(t, enriched, 1)
	assert.Zero(t, skipped)
	assert.True(t, enriched[0].USDVolume.Equal(decimal.NewFromInt(2000)),
		"expected stable-side volume 2000, got %s", enriched[0].USDVolume)
}

func TestEnrichSymbolIdentifiersUseListedDecimals(t *testing.T) {
	e := NewEnricher(nil, nil)

	// Symbol-identified USDC carries 6 decimals, not the 18 default;
	// both sides stable, so volume is side0.
	recs := []models.SwapRecord{
		record("0x111", "usdc", "usdt", "1000000000", "-999000000"),
	}

	enriched, skipped := e.Enrich(recs, prices("usdc", 1.0, "usdt", 1.0))
	require.Len(t, enriched, 1)
	assert.Zero(t, skipped)
	assert.True(t, enriched[0].USDVolume.Equal(decimal.NewFromInt(1000)),
		"expected 1000, got %s", enriched[0].USDVolume)
}

func TestEnrichNegativeAmountsUseAbsoluteValue(t *testing.T) {
	e := NewEnricher(nil, nil)

	recs := []models.SwapRecord{
		record("0xeee", usdc, weth, "-2000000000", "1000000000000000000"),
	}

	enriched, _ := e.Enrich(recs, prices(usdc, 1.0, weth, 2000.0))
	require.Len(t, enriched, 1)
	assert.True(t, enriched[0].USDVolume.IsPositive())
	assert.True(t, enriched[0].USDVolume.Equal(decimal.NewFromInt(2000)))
}

func TestPairKeyIsOrderIndependent(t *testing.T) {
	k1 := PairKey(weth, usdc)
	k2 := PairKey(usdc, weth)

	assert.Equal(t, k1, k2)
	assert.Equal(t, usdc+"-"+weth, k1, "addresses must be sorted")
}
