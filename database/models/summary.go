package models

import "time"

// PairSummary is one aggregate row of a single run, as stored in
// MongoDB. RunAt identifies the run that produced it.
type PairSummary struct {
	PairKey  string    `json:"pair_key" bson:"pair_key"`
	Count    int       `json:"count" bson:"count"`
	TotalUSD string    `json:"total_usd" bson:"total_usd"`
	AvgUSD   string    `json:"avg_usd" bson:"avg_usd"`
	RunAt    time.Time `json:"run_at" bson:"run_at"`
}
