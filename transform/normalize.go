package transform

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/phoenix-network/phoenix-pipeline/models"
)

// Normalizer converts raw subgraph payloads into canonical SwapRecord
// values. Malformed entries are dropped and counted, never fatal:
// partial upstream data must not halt a run.
type Normalizer struct {
	logger *slog.Logger
}

func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// Normalize validates and canonicalizes a raw batch. It returns the
// well-formed records and the number of rejected payloads. Duplicate
// transaction hashes within the batch collapse to the first occurrence,
// which protects against the indexer returning overlapping pages.
func (n *Normalizer) Normalize(raw []models.RawSwap) ([]models.SwapRecord, int) {
	records := make([]models.SwapRecord, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	rejected := 0

	for _, r := range raw {
		rec, ok := n.normalizeOne(r)
		if !ok {
			rejected++
			continue
		}
		if seen[rec.TxHash] {
			n.logger.Debug("duplicate tx hash in batch, keeping first occurrence", "txHash", rec.TxHash)
			continue
		}
		seen[rec.TxHash] = true
		records = append(records, rec)
	}

	if rejected > 0 {
		n.logger.Warn("rejected malformed swap payloads", "rejected", rejected, "accepted", len(records))
	}

	return records, rejected
}

func (n *Normalizer) normalizeOne(r models.RawSwap) (models.SwapRecord, bool) {
	if r.TxHash == "" {
		n.logger.Debug("rejecting swap with empty tx hash")
		return models.SwapRecord{}, false
	}

	token0, ok := canonicalToken(r.Token0)
	if !ok {
		n.logger.Debug("rejecting swap with invalid token0", "txHash", r.TxHash, "token0", r.Token0)
		return models.SwapRecord{}, false
	}
	token1, ok := canonicalToken(r.Token1)
	if !ok {
		n.logger.Debug("rejecting swap with invalid token1", "txHash", r.TxHash, "token1", r.Token1)
		return models.SwapRecord{}, false
	}

	block, err := strconv.ParseUint(strings.TrimSpace(r.BlockNumber), 10, 64)
	if err != nil {
		n.logger.Debug("rejecting swap with invalid block number", "txHash", r.TxHash, "blockNumber", r.BlockNumber)
		return models.SwapRecord{}, false
	}

	amount0, err := parseAmount(r.Amount0)
	if err != nil {
		n.logger.Debug("rejecting swap with invalid amount0", "txHash", r.TxHash, "amount0", r.Amount0)
		return models.SwapRecord{}, false
	}
	amount1, err := parseAmount(r.Amount1)
	if err != nil {
		n.logger.Debug("rejecting swap with invalid amount1", "txHash", r.TxHash, "amount1", r.Amount1)
		return models.SwapRecord{}, false
	}

	// Timestamp is informational only; a missing one is not a reason to
	// drop an otherwise valid record.
	ts, _ := strconv.ParseInt(strings.TrimSpace(r.Timestamp), 10, 64)

	return models.SwapRecord{
		TxHash:      r.TxHash,
		BlockNumber: block,
		Timestamp:   ts,
		Token0:      token0,
		Token1:      token1,
		Amount0Raw:  amount0,
		Amount1Raw:  amount1,
	}, true
}

// canonicalToken lowercases a token identifier. 0x-identifiers must be
// valid hex addresses; anything else is treated as a symbol or feed id
// and passed through.
func canonicalToken(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if !common.IsHexAddress(s) {
			return "", false
		}
		return strings.ToLower(common.HexToAddress(s).Hex()), true
	}
	return strings.ToLower(s), true
}

func parseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(s))
}
