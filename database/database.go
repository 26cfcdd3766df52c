package database

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/phoenix-network/phoenix-pipeline/database/models"
)

type Database struct {
	client       *mongo.Client
	databaseName string
	logger       *slog.Logger
}

type DatabaseOpts struct {
	URI          string
	DatabaseName string
	Logger       *slog.Logger
}

const defaultTimeout = 10 * time.Second

func NewDatabase(opts DatabaseOpts) (*Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(opts.URI).
		SetMaxPoolSize(100).
		SetMinPoolSize(10).
		SetMaxConnecting(10).
		SetServerSelectionTimeout(5 * time.Second).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Database{
		client:       client,
		databaseName: opts.DatabaseName,
		logger:       opts.Logger,
	}, nil
}

func (db *Database) Close(ctx context.Context) error {
	return db.client.Disconnect(ctx)
}

func (db *Database) CreateIndexes(ctx context.Context) error {
	swapsColl := db.client.Database(db.databaseName).Collection("swaps")
	_, err := swapsColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tx_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "block_number", Value: 1}}},
		{Keys: bson.D{{Key: "pair_key", Value: 1}}},
		{Keys: bson.D{{Key: "token0", Value: 1}}},
		{Keys: bson.D{{Key: "token1", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create swaps indexes: %w", err)
	}

	summariesColl := db.client.Database(db.databaseName).Collection("pair_summaries")
	_, err = summariesColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "pair_key", Value: 1}}},
		{Keys: bson.D{{Key: "run_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create pair_summaries indexes: %w", err)
	}

	checkpointsColl := db.client.Database(db.databaseName).Collection("checkpoints")
	_, err = checkpointsColl.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create checkpoints index: %w", err)
	}

	return nil
}

// BatchCreateSwaps inserts enriched swaps, tolerating duplicate tx
// hashes. Re-running against an overlapping range must not fail on
// records that were already committed.
func (db *Database) BatchCreateSwaps(ctx context.Context, swaps []models.Swap) error {
	if len(swaps) == 0 {
		return nil
	}

	collection := db.client.Database(db.databaseName).Collection("swaps")
	documents := make([]interface{}, len(swaps))
	for i, swap := range swaps {
		documents[i] = swap
	}

	_, err := collection.InsertMany(ctx, documents, options.InsertMany().SetOrdered(false))
	if err != nil {
		if writeErr, ok := err.(mongo.BulkWriteException); ok {
			successfulInserts := len(swaps) - len(writeErr.WriteErrors)
			if successfulInserts > 0 {
				db.logger.Info("partially inserted swaps",
					"successful", successfulInserts,
					"failed", len(writeErr.WriteErrors))
			}
			// 11000 is MongoDB's duplicate key error code
			allDuplicates := true
			for _, writeErr := range writeErr.WriteErrors {
				if writeErr.Code != 11000 {
					allDuplicates = false
					break
				}
			}
			if allDuplicates {
				return nil
			}
		}
		return fmt.Errorf("failed to insert swaps: %w", err)
	}

	return nil
}

// BatchCreateSummaries inserts one run's summary rows.
func (db *Database) BatchCreateSummaries(ctx context.Context, summaries []models.PairSummary) error {
	if len(summaries) == 0 {
		return nil
	}

	collection := db.client.Database(db.databaseName).Collection("pair_summaries")
	documents := make([]interface{}, len(summaries))
	for i, summary := range summaries {
		documents[i] = summary
	}

	if _, err := collection.InsertMany(ctx, documents); err != nil {
		return fmt.Errorf("failed to insert summaries: %w", err)
	}

	return nil
}

// UpdateCheckpoint upserts the named checkpoint mirror.
func (db *Database) UpdateCheckpoint(ctx context.Context, name string, blockNumber uint64) error {
	collection := db.client.Database(db.databaseName).Collection("checkpoints")

	filter := bson.D{{Key: "name", Value: name}}
	update := bson.D{{
		Key: "$set",
		Value: bson.D{
			{Key: "last_processed_block", Value: blockNumber},
			{Key: "updated_at", Value: time.Now().UTC()},
		},
	}}

	_, err := collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to update checkpoint: %w", err)
	}

	return nil
}

func (db *Database) GetCheckpoint(ctx context.Context, name string) (models.Checkpoint, error) {
	collection := db.client.Database(db.databaseName).Collection("checkpoints")

	var result models.Checkpoint
	err := collection.FindOne(ctx, bson.D{{Key: "name", Value: name}}).Decode(&result)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return models.Checkpoint{Name: name}, nil
		}
		return models.Checkpoint{}, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	return result, nil
}

func buildFilter(f models.Filter) bson.M {
	filter := bson.M{}
	if f.PairKey != "" {
		filter["pair_key"] = f.PairKey
	}
	if f.Token != "" {
		filter["$or"] = bson.A{
			bson.M{"token0": f.Token},
			bson.M{"token1": f.Token},
		}
	}
	if f.TxHash != "" {
		filter["tx_hash"] = f.TxHash
	}
	return filter
}

// GetSwaps returns enriched swaps matching the filter, newest blocks
// first, paginated.
func (db *Database) GetSwaps(ctx context.Context, filter models.Filter, page, pageSize int64) (*models.PaginatedResult, error) {
	collection := db.client.Database(db.databaseName).Collection("swaps")

	mongoFilter := buildFilter(filter)
	skip := (page - 1) * pageSize

	total, err := collection.CountDocuments(ctx, mongoFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to count swaps: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "block_number", Value: -1}}).
		SetSkip(skip).
		SetLimit(pageSize)

	cursor, err := collection.Find(ctx, mongoFilter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find swaps: %w", err)
	}
	defer cursor.Close(ctx)

	swaps := make([]models.Swap, 0, pageSize)
	if err := cursor.All(ctx, &swaps); err != nil {
		return nil, fmt.Errorf("failed to decode swaps: %w", err)
	}

	return &models.PaginatedResult{
		Items:      swaps,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// GetLatestSummaries returns the summary rows of the most recent run,
// sorted by total USD volume descending.
func (db *Database) GetLatestSummaries(ctx context.Context) ([]models.PairSummary, error) {
	collection := db.client.Database(db.databaseName).Collection("pair_summaries")

	// Find the newest run first, then all of its rows.
	var latest models.PairSummary
	err := collection.FindOne(ctx, bson.M{}, options.FindOne().SetSort(bson.D{{Key: "run_at", Value: -1}})).Decode(&latest)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return []models.PairSummary{}, nil
		}
		return nil, fmt.Errorf("failed to find latest run: %w", err)
	}

	cursor, err := collection.Find(ctx, bson.D{{Key: "run_at", Value: latest.RunAt}})
	if err != nil {
		return nil, fmt.Errorf("failed to find summaries: %w", err)
	}
	defer cursor.Close(ctx)

	var summaries []models.PairSummary
	if err := cursor.All(ctx, &summaries); err != nil {
		return nil, fmt.Errorf("failed to decode summaries: %w", err)
	}

	// total_usd is stored as a string; sort numerically here rather
	// than lexicographically in Mongo.
	sort.Slice(summaries, func(i, j int) bool {
		ti, erri := decimal.NewFromString(summaries[i].TotalUSD)
		tj, errj := decimal.NewFromString(summaries[j].TotalUSD)
		if erri != nil || errj != nil {
			return summaries[i].PairKey < summaries[j].PairKey
		}
		if cmp := ti.Cmp(tj); cmp != 0 {
			return cmp > 0
		}
		return summaries[i].PairKey < summaries[j].PairKey
	})

	return summaries, nil
}
