package transform

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/phoenix-network/phoenix-pipeline/models"
)

// Enricher attaches USD prices to swap records and computes the
// stablecoin-aware USD volume.
type Enricher struct {
	tokens *TokenTable
	logger *slog.Logger
}

func NewEnricher(tokens *TokenTable, logger *slog.Logger) *Enricher {
	if tokens == nil {
		tokens = DefaultTokenTable()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{tokens: tokens, logger: logger}
}

// Enrich converts validated swap records into enriched swaps using the
// given price map. A record whose token prices are not both resolved
// is skipped, never zeroed: a zero volume would misrepresent real
// economic activity as no activity. Returns the enriched swaps and the
// skipped count.
func (e *Enricher) Enrich(records []models.SwapRecord, prices map[string]decimal.Decimal) ([]models.EnrichedSwap, int) {
	enriched := make([]models.EnrichedSwap, 0, len(records))
	skipped := 0

	for _, rec := range records {
		price0, ok0 := prices[rec.Token0]
		price1, ok1 := prices[rec.Token1]
		if !ok0 || !ok1 {
			e.logger.Debug("skipping swap with unresolved price",
				"txHash", rec.TxHash,
				"token0", rec.Token0, "priced0", ok0,
				"token1", rec.Token1, "priced1", ok1)
			skipped++
			continue
		}

		amount0 := rec.Amount0Raw.Shift(-e.tokens.TokenDecimals(rec.Token0))
		amount1 := rec.Amount1Raw.Shift(-e.tokens.TokenDecimals(rec.Token1))

		volume := e.usdVolume(rec.Token0, rec.Token1, amount0, amount1, price0, price1)

		enriched = append(enriched, models.EnrichedSwap{
			SwapRecord: rec,
			PriceUSD0:  price0.Round(6),
			PriceUSD1:  price1.Round(6),
			USDVolume:  volume.Round(6),
			PairKey:    PairKey(rec.Token0, rec.Token1),
		})
	}

	if skipped > 0 {
		e.logger.Warn("skipped swaps with unresolved prices", "skipped", skipped, "enriched", len(enriched))
	}

	return enriched, skipped
}

// usdVolume applies the stablecoin-aware volume policy:
//   - both tokens stable: one side only, both already represent the
//     same value and summing would double-count it
//   - exactly one stable: the stable side, it is the more reliable USD
//     reference
//   - neither stable: sum of both sides, the standard bilateral
//     convention
func (e *Enricher) usdVolume(token0, token1 string, amount0, amount1, price0, price1 decimal.Decimal) decimal.Decimal {
	stable0 := e.tokens.IsStable(token0)
	stable1 := e.tokens.IsStable(token1)

	side0 := amount0.Mul(price0).Abs()
	side1 := amount1.Mul(price1).Abs()

	switch {
	case stable0 && stable1:
		return side0
	case stable0:
		return side0
	case stable1:
		return side1
	default:
		return side0.Add(side1)
	}
}

// PairKey builds the canonical, order-independent identifier for a
// two-token trading pair: the two addresses sorted and joined, so that
// token0/token1 order never fragments aggregation.
func PairKey(token0, token1 string) string {
	if token1 < token0 {
		token0, token1 = token1, token0
	}
	return token0 + "-" + token1
}
