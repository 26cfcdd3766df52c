// Package output persists enriched swaps and pair summaries. Sinks are
// format-agnostic: each write either fully succeeds or returns an
// error, and a write failure must prevent the checkpoint update.
package output

import (
	"context"

	"github.com/phoenix-network/phoenix-pipeline/models"
)

type Sink interface {
	WriteSwaps(ctx context.Context, swaps []models.EnrichedSwap) error
	WriteSummary(ctx context.Context, summary []models.PairSummary) error
}
