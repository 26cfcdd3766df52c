package models

import "time"

// Checkpoint mirrors the pipeline's file checkpoint in MongoDB so the
// API can report indexing progress. The file store remains the source
// of truth for resumption.
type Checkpoint struct {
	Name               string    `json:"name" bson:"name"`
	LastProcessedBlock uint64    `json:"last_processed_block" bson:"last_processed_block"`
	UpdatedAt          time.Time `json:"updated_at" bson:"updated_at"`
}
