package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawSwap is a swap payload as returned by the subgraph, before any
// validation. All numeric fields are kept as strings until the
// normalizer has parsed them.
type RawSwap struct {
	TxHash      string `json:"txHash"`
	BlockNumber string `json:"blockNumber"`
	Timestamp   string `json:"timestamp"`
	Token0      string `json:"token0"`
	Token1      string `json:"token1"`
	Amount0     string `json:"amount0"`
	Amount1     string `json:"amount1"`
}

// SwapRecord is a validated on-chain swap event in canonical form.
// Amounts are signed integers in native (undecimaled) token units;
// a negative amount is an outflow from the pool.
type SwapRecord struct {
	TxHash      string          `json:"tx_hash"`
	BlockNumber uint64          `json:"block_number"`
	Timestamp   int64           `json:"timestamp"`
	Token0      string          `json:"token0"`
	Token1      string          `json:"token1"`
	Amount0Raw  decimal.Decimal `json:"amount0_raw"`
	Amount1Raw  decimal.Decimal `json:"amount1_raw"`
}

// EnrichedSwap is a SwapRecord with resolved USD prices and the
// computed USD volume. Swaps whose prices could not be resolved are
// never materialized as EnrichedSwap values; they are counted as
// skipped instead.
type EnrichedSwap struct {
	SwapRecord

	PriceUSD0 decimal.Decimal `json:"price_usd0"`
	PriceUSD1 decimal.Decimal `json:"price_usd1"`
	USDVolume decimal.Decimal `json:"usd_volume"`
	PairKey   string          `json:"pair_key"`
}

// PairSummary is one aggregate row over a single run's enriched swaps.
type PairSummary struct {
	PairKey  string          `json:"pair_key"`
	Count    int             `json:"count"`
	TotalUSD decimal.Decimal `json:"total_usd"`
	AvgUSD   decimal.Decimal `json:"avg_usd"`
}

// Checkpoint marks the highest block number fully processed, written
// only after a run has persisted all of its outputs.
type Checkpoint struct {
	LastProcessedBlock uint64    `json:"last_processed_block"`
	LastUpdatedAt      time.Time `json:"last_updated_at"`
}

// RunStats holds the counters emitted when a run reaches Done.
type RunStats struct {
	Fetched       int           `json:"fetched"`
	Rejected      int           `json:"rejected"`
	FilteredOld   int           `json:"filtered_old"`
	New           int           `json:"new"`
	UniqueTokens  int           `json:"unique_tokens"`
	PricesFetched int           `json:"prices_fetched"`
	PricesMissing int           `json:"prices_missing"`
	Enriched      int           `json:"enriched"`
	Skipped       int           `json:"skipped"`
	Pairs         int           `json:"pairs"`
	OracleCalls   int           `json:"oracle_calls"`
	LastBlock     uint64        `json:"last_block"`
	Elapsed       time.Duration `json:"elapsed"`
}
