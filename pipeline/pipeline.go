package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/phoenix-network/phoenix-pipeline/models"
	"github.com/phoenix-network/phoenix-pipeline/output"
	"github.com/phoenix-network/phoenix-pipeline/transform"
	"github.com/phoenix-network/phoenix-pipeline/types"
)

// SwapSource produces the candidate swap batch for a run.
type SwapSource interface {
	GetRecentSwaps(ctx context.Context) ([]models.RawSwap, error)
}

// PriceSource resolves USD unit prices for token identifiers.
// Identifiers that cannot be resolved are absent from the result.
type PriceSource interface {
	FetchPrices(ctx context.Context, identifiers []string) (map[string]decimal.Decimal, error)
}

// CheckpointStore persists the last fully processed block between runs.
type CheckpointStore interface {
	Read() (models.Checkpoint, error)
	Write(block uint64) error
}

type PipelineOpts struct {
	Swaps      SwapSource
	Prices     PriceSource
	Checkpoint CheckpointStore
	Sinks      []output.Sink

	Tokens *transform.TokenTable

	// MaxPairs caps the summary at the top N pairs by USD volume.
	// Zero means no cap.
	MaxPairs int

	Logger *slog.Logger
}

// Pipeline runs the incremental enrichment cycle: fetch, filter
// against the checkpoint, price, aggregate, persist, then advance the
// checkpoint. A single Pipeline may be reused across runs but runs
// must not overlap.
type Pipeline struct {
	swaps      SwapSource
	prices     PriceSource
	checkpoint CheckpointStore
	sinks      []output.Sink

	normalizer *transform.Normalizer
	enricher   *transform.Enricher
	maxPairs   int

	logger *slog.Logger

	mu    sync.RWMutex
	stage types.Stage
}

func NewPipeline(opts PipelineOpts) (*Pipeline, error) {
	if opts.Swaps == nil {
		return nil, fmt.Errorf("pipeline requires a swap source")
	}
	if opts.Prices == nil {
		return nil, fmt.Errorf("pipeline requires a price source")
	}
	if opts.Checkpoint == nil {
		return nil, fmt.Errorf("pipeline requires a checkpoint store")
	}
	if len(opts.Sinks) == 0 {
		return nil, fmt.Errorf("pipeline requires at least one output sink")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tokens == nil {
		opts.Tokens = transform.DefaultTokenTable()
	}

	logger := opts.Logger.With("component", "pipeline")

	return &Pipeline{
		swaps:      opts.Swaps,
		prices:     opts.Prices,
		checkpoint: opts.Checkpoint,
		sinks:      opts.Sinks,
		normalizer: transform.NewNormalizer(logger),
		enricher:   transform.NewEnricher(opts.Tokens, logger),
		maxPairs:   opts.MaxPairs,
		logger:     logger,
		stage:      types.Idle,
	}, nil
}

// Stage returns the stage the pipeline is currently in.
func (p *Pipeline) Stage() types.Stage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stage
}

func (p *Pipeline) setStage(s types.Stage) {
	p.mu.Lock()
	p.stage = s
	p.mu.Unlock()
	p.logger.Debug("stage transition", "stage", s)
}

// Run executes one full pipeline cycle. On a fatal error the returned
// error is a *types.StageError naming the stage that failed and the
// checkpoint is left untouched, so the next run reprocesses the same
// window. Price resolution failures are not fatal: affected swaps are
// skipped and counted, not lost silently.
func (p *Pipeline) Run(ctx context.Context) (models.RunStats, error) {
	start := time.Now()
	var stats models.RunStats

	fail := func(stage types.Stage, err error) (models.RunStats, error) {
		p.setStage(types.Aborted)
		return stats, &types.StageError{Stage: stage, Err: err}
	}

	p.setStage(types.Loading)
	cp, err := p.checkpoint.Read()
	if err != nil {
		return fail(types.Loading, err)
	}
	p.logger.Info("starting pipeline run", "lastProcessedBlock", cp.LastProcessedBlock)

	p.setStage(types.Fetching)
	raw, err := p.swaps.GetRecentSwaps(ctx)
	if err != nil {
		return fail(types.Fetching, fmt.Errorf("failed to fetch swaps: %w", err))
	}
	stats.Fetched = len(raw)

	records, rejected := p.normalizer.Normalize(raw)
	stats.Rejected = rejected

	p.setStage(types.Filtering)
	fresh := p.filterProcessed(records, cp.LastProcessedBlock)
	stats.FilteredOld = len(records) - len(fresh)
	stats.New = len(fresh)

	if len(fresh) == 0 {
		p.logger.Info("no new swaps past checkpoint, nothing to do",
			"fetched", stats.Fetched, "rejected", stats.Rejected, "filteredOld", stats.FilteredOld)
		stats.LastBlock = cp.LastProcessedBlock
		stats.Elapsed = time.Since(start)
		p.setStage(types.Done)
		return stats, nil
	}

	p.setStage(types.TokenCollection)
	tokens := uniqueTokens(fresh)
	stats.UniqueTokens = len(tokens)

	p.setStage(types.PriceEnrichment)
	prices, err := p.prices.FetchPrices(ctx, tokens)
	if err != nil {
		// Degraded, not fatal: swaps without a resolved price are
		// skipped below and surface in the skip counters.
		p.logger.Warn("price resolution failed, continuing with partial prices",
			"resolved", len(prices), "error", err)
	}
	stats.PricesFetched = len(prices)
	stats.PricesMissing = len(tokens) - len(prices)
	if counter, ok := p.prices.(interface{ Calls() int }); ok {
		stats.OracleCalls = counter.Calls()
	}

	enriched, skipped := p.enricher.Enrich(fresh, prices)
	stats.Enriched = len(enriched)
	stats.Skipped = skipped

	p.setStage(types.Aggregating)
	summary := transform.Summarize(enriched, p.maxPairs)
	stats.Pairs = len(summary)

	p.setStage(types.Writing)
	for _, sink := range p.sinks {
		if err := sink.WriteSwaps(ctx, enriched); err != nil {
			return fail(types.Writing, fmt.Errorf("failed to write swaps: %w", err))
		}
		if err := sink.WriteSummary(ctx, summary); err != nil {
			return fail(types.Writing, fmt.Errorf("failed to write summary: %w", err))
		}
	}

	p.setStage(types.CheckpointUpdate)
	maxBlock := highestBlock(fresh)
	if err := p.checkpoint.Write(maxBlock); err != nil {
		return fail(types.CheckpointUpdate, fmt.Errorf("failed to update checkpoint: %w", err))
	}
	for _, sink := range p.sinks {
		if mirror, ok := sink.(interface {
			MirrorCheckpoint(ctx context.Context, block uint64) error
		}); ok {
			if err := mirror.MirrorCheckpoint(ctx, maxBlock); err != nil {
				p.logger.Warn("failed to mirror checkpoint", "error", err)
			}
		}
	}
	stats.LastBlock = maxBlock

	stats.Elapsed = time.Since(start)
	p.setStage(types.Done)
	p.logger.Info("pipeline run complete",
		"fetched", stats.Fetched,
		"rejected", stats.Rejected,
		"filteredOld", stats.FilteredOld,
		"new", stats.New,
		"uniqueTokens", stats.UniqueTokens,
		"enriched", stats.Enriched,
		"skipped", stats.Skipped,
		"pairs", stats.Pairs,
		"lastBlock", stats.LastBlock,
		"elapsed", stats.Elapsed.Round(time.Millisecond))

	return stats, nil
}

// filterProcessed drops records at or below the checkpoint block. A
// gap between the checkpoint and the oldest new record usually means
// swaps fell out of the fetch window before being processed; worth a
// warning, not an abort.
func (p *Pipeline) filterProcessed(records []models.SwapRecord, lastBlock uint64) []models.SwapRecord {
	fresh := make([]models.SwapRecord, 0, len(records))
	var oldest uint64
	for _, rec := range records {
		if rec.BlockNumber <= lastBlock {
			continue
		}
		if oldest == 0 || rec.BlockNumber < oldest {
			oldest = rec.BlockNumber
		}
		fresh = append(fresh, rec)
	}

	if lastBlock > 0 && oldest > lastBlock+1 {
		p.logger.Warn("gap between checkpoint and oldest new swap, some blocks may have been missed",
			"lastProcessedBlock", lastBlock, "oldestNewBlock", oldest)
	}

	return fresh
}

func uniqueTokens(records []models.SwapRecord) []string {
	seen := make(map[string]struct{}, len(records)*2)
	for _, rec := range records {
		seen[rec.Token0] = struct{}{}
		seen[rec.Token1] = struct{}{}
	}
	tokens := make([]string, 0, len(seen))
	for token := range seen {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

func highestBlock(records []models.SwapRecord) uint64 {
	var max uint64
	for _, rec := range records {
		if rec.BlockNumber > max {
			max = rec.BlockNumber
		}
	}
	return max
}
