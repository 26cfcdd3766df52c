package types

import "fmt"

// Stage represents the different states a pipeline run can be in
type Stage string

const (
	// Idle - run has been constructed but not started
	Idle Stage = "IDLE"

	// Loading - reading checkpoint and configuration
	Loading Stage = "LOADING"

	// Fetching - retrieving the candidate swap batch from the subgraph
	Fetching Stage = "FETCHING"

	// Filtering - discarding records at or below the checkpoint block
	Filtering Stage = "FILTERING"

	// TokenCollection - deriving the unique token set from the filtered batch
	TokenCollection Stage = "TOKEN_COLLECTION"

	// PriceEnrichment - resolving USD prices and enriching swap records
	PriceEnrichment Stage = "PRICE_ENRICHMENT"

	// Aggregating - grouping enriched swaps into per-pair summaries
	Aggregating Stage = "AGGREGATING"

	// Writing - persisting enriched swaps and summaries to the output sinks
	Writing Stage = "WRITING"

	// CheckpointUpdate - advancing the persisted last processed block
	CheckpointUpdate Stage = "CHECKPOINT_UPDATE"

	// Done - run completed and statistics emitted
	Done Stage = "DONE"

	// Aborted - run terminated by a fatal error, checkpoint untouched
	Aborted Stage = "ABORTED"
)

// StageError is a fatal pipeline error tagged with the stage the
// orchestrator was in when it occurred.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline aborted in stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
