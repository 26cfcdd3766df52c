package models

// Swap is an enriched swap as stored in MongoDB. Decimal values are
// stored as strings to avoid float precision loss in BSON.
type Swap struct {
	TxHash      string `json:"tx_hash" bson:"tx_hash"`
	BlockNumber uint64 `json:"block_number" bson:"block_number"`
	Timestamp   int64  `json:"timestamp" bson:"timestamp"`
	Token0      string `json:"token0" bson:"token0"`
	Token1      string `json:"token1" bson:"token1"`
	Amount0Raw  string `json:"amount0_raw" bson:"amount0_raw"`
	Amount1Raw  string `json:"amount1_raw" bson:"amount1_raw"`
	PriceUSD0   string `json:"price_usd0" bson:"price_usd0"`
	PriceUSD1   string `json:"price_usd1" bson:"price_usd1"`
	USDVolume   string `json:"usd_volume" bson:"usd_volume"`
	PairKey     string `json:"pair_key" bson:"pair_key"`
}
