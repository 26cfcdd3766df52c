package output

import (
	"context"
	"fmt"
	"time"

	"github.com/phoenix-network/phoenix-pipeline/database"
	dbmodels "github.com/phoenix-network/phoenix-pipeline/database/models"
	"github.com/phoenix-network/phoenix-pipeline/models"
)

// MongoSink persists enriched swaps and summaries through the database
// layer, making them queryable by the API server. Duplicate tx hashes
// are tolerated on insert so overlapping re-runs stay idempotent.
type MongoSink struct {
	db *database.Database
}

func NewMongoSink(db *database.Database) *MongoSink {
	return &MongoSink{db: db}
}

func (s *MongoSink) WriteSwaps(ctx context.Context, swaps []models.EnrichedSwap) error {
	docs := make([]dbmodels.Swap, len(swaps))
	for i, swap := range swaps {
		docs[i] = dbmodels.Swap{
			TxHash:      swap.TxHash,
			BlockNumber: swap.BlockNumber,
			Timestamp:   swap.Timestamp,
			Token0:      swap.Token0,
			Token1:      swap.Token1,
			Amount0Raw:  swap.Amount0Raw.String(),
			Amount1Raw:  swap.Amount1Raw.String(),
			PriceUSD0:   swap.PriceUSD0.String(),
			PriceUSD1:   swap.PriceUSD1.String(),
			USDVolume:   swap.USDVolume.String(),
			PairKey:     swap.PairKey,
		}
	}

	if err := s.db.BatchCreateSwaps(ctx, docs); err != nil {
		return fmt.Errorf("failed to write swaps to mongo: %w", err)
	}
	return nil
}

func (s *MongoSink) WriteSummary(ctx context.Context, summary []models.PairSummary) error {
	runAt := time.Now().UTC()
	docs := make([]dbmodels.PairSummary, len(summary))
	for i, row := range summary {
		docs[i] = dbmodels.PairSummary{
			PairKey:  row.PairKey,
			Count:    row.Count,
			TotalUSD: row.TotalUSD.StringFixed(2),
			AvgUSD:   row.AvgUSD.StringFixed(2),
			RunAt:    runAt,
		}
	}

	if err := s.db.BatchCreateSummaries(ctx, docs); err != nil {
		return fmt.Errorf("failed to write summary to mongo: %w", err)
	}
	return nil
}

// MirrorCheckpoint copies the file checkpoint into Mongo for the API.
// Best-effort: the file store remains authoritative.
func (s *MongoSink) MirrorCheckpoint(ctx context.Context, block uint64) error {
	return s.db.UpdateCheckpoint(ctx, "phoenix", block)
}
