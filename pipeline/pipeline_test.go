package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phoenix-network/phoenix-pipeline/models"
	"github.com/phoenix-network/phoenix-pipeline/output"
	"github.com/phoenix-network/phoenix-pipeline/types"
)

const (
	weth = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	usdc = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
)

type mockSwaps struct {
	swaps []models.RawSwap
	err   error
}

func (m *mockSwaps) GetRecentSwaps(context.Context) ([]models.RawSwap, error) {
	return m.swaps, m.err
}

type mockPrices struct {
	prices map[string]decimal.Decimal
	err    error
}

func (m *mockPrices) FetchPrices(_ context.Context, identifiers []string) (map[string]decimal.Decimal, error) {
	result := make(map[string]decimal.Decimal)
	for _, id := range identifiers {
		if p, ok := m.prices[id]; ok {
			result[id] = p
		}
	}
	return result, m.err
}

type mockCheckpoint struct {
	block    uint64
	writes   []uint64
	readErr  error
	writeErr error
}

func (m *mockCheckpoint) Read() (models.Checkpoint, error) {
	return models.Checkpoint{LastProcessedBlock: m.block}, m.readErr
}

func (m *mockCheckpoint) Write(block uint64) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.block = block
	m.writes = append(m.writes, block)
	return nil
}

type mockSink struct {
	swaps     [][]models.EnrichedSwap
	summaries [][]models.PairSummary
	swapErr   error
}

func (m *mockSink) WriteSwaps(_ context.Context, swaps []models.EnrichedSwap) error {
	if m.swapErr != nil {
		return m.swapErr
	}
	m.swaps = append(m.swaps, swaps)
	return nil
}

func (m *mockSink) WriteSummary(_ context.Context, summary []models.PairSummary) error {
	m.summaries = append(m.summaries, summary)
	return nil
}

func rawSwap(txHash, block string) models.RawSwap {
	return models.RawSwap{
		TxHash:      txHash,
		BlockNumber: block,
		Timestamp:   "1700000000",
		Token0:      weth,
		Token1:      usdc,
		Amount0:     "1000000000000000000",
		Amount1:     "-2000000000",
	}
}

func usdPrices() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		weth: decimal.NewFromInt(2000),
		usdc: decimal.NewFromInt(1),
	}
}

func newTestPipeline(t *testing.T, swaps *mockSwaps, prices *mockPrices, cp *mockCheckpoint, sink *mockSink) *Pipeline {
	t.Helper()
	p, err := NewPipeline(PipelineOpts{
		Swaps:      swaps,
		Prices:     prices,
		Checkpoint: cp,
		Sinks:      []output.Sink{sink},
	})
	require.NoError(t, err)
	return p
}

func TestRunHappyPath(t *testing.T) {
	swaps := &mockSwaps{swaps: []models.RawSwap{
		rawSwap("0xaaa", "100"),
		rawSwap("0xbbb", "105"),
	}}
	prices := &mockPrices{prices: usdPrices()}
	cp := &mockCheckpoint{}
	sink := &mockSink{}

	p := newTestPipeline(t, swaps, prices, cp, sink)

	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.Done, p.Stage())
	assert.Equal(t, 2, stats.Fetched)
	assert.Equal(t, 2, stats.New)
	assert.Equal(t, 2, stats.Enriched)
	assert.Equal(t, 1, stats.Pairs)
	assert.Equal(t, uint64(105), stats.LastBlock)

	require.Len(t, sink.swaps, 1)
	require.Len(t, sink.summaries, 1)
	assert.Equal(t, []uint64{105}, cp.writes)
}

func TestRunFiltersAlreadyProcessedBlocks(t *testing.T) {
	swaps := &mockSwaps{swaps: []models.RawSwap{
		rawSwap("0xaaa", "100"), // at checkpoint, dropped
		rawSwap("0xbbb", "101"),
	}}
	prices := &mockPrices{prices: usdPrices()}
	cp := &mockCheckpoint{block: 100}
	sink := &mockSink{}

	p := newTestPipeline(t, swaps, prices, cp, sink)

	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FilteredOld)
	assert.Equal(t, 1, stats.New)
	assert.Equal(t, uint64(101), stats.LastBlock)
	require.Len(t, sink.swaps, 1)
	assert.Len(t, sink.swaps[0], 1)
}

func TestRunEmptyBatchShortCircuits(t *testing.T) {
	swaps := &mockSwaps{}
	prices := &mockPrices{prices: usdPrices()}
	cp := &mockCheckpoint{block: 50}
	sink := &mockSink{}

	p := newTestPipeline(t, swaps, prices, cp, sink)

	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.Done, p.Stage())
	assert.Zero(t, stats.New)
	// Nothing written, checkpoint untouched.
	assert.Empty(t, sink.swaps)
	assert.Empty(t, sink.summaries)
	assert.Empty(t, cp.writes)
	assert.Equal(t, uint64(50), stats.LastBlock)
}

func TestRunFetchFailureIsFatal(t *testing.T) {
	swaps := &mockSwaps{err: errors.New("subgraph unavailable")}
	prices := &mockPrices{prices: usdPrices()}
	cp := &mockCheckpoint{}
	sink := &mockSink{}

	p := newTestPipeline(t, swaps, prices, cp, sink)

	_, err := p.Run(context.Background())
	require.Error(t, err)

	var stageErr *types.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, types.Fetching, stageErr.Stage)
	assert.Equal(t, types.Aborted, p.Stage())
	assert.Empty(t, cp.writes)
}

func TestRunPriceFailureDegradesToSkips(t *testing.T) {
	swaps := &mockSwaps{swaps: []models.RawSwap{rawSwap("0xaaa", "100")}}
	prices := &mockPrices{err: errors.New("oracle down")}
	cp := &mockCheckpoint{}
	sink := &mockSink{}

	p := newTestPipeline(t, swaps, prices, cp, sink)

	stats, err := p.Run(context.Background())
	require.NoError(t, err, "price failures must not abort the run")

	assert.Equal(t, types.Done, p.Stage())
	assert.Zero(t, stats.Enriched)
	assert.Equal(t, 1, stats.Skipped)
	// The run still completes and advances the checkpoint so the same
	// swaps are not refetched forever.
	assert.Equal(t, []uint64{100}, cp.writes)
}

func TestRunWriteFailureIsFatalAndSkipsCheckpoint(t *testing.T) {
	swaps := &mockSwaps{swaps: []models.RawSwap{rawSwap("0xaaa", "100")}}
	prices := &mockPrices{prices: usdPrices()}
	cp := &mockCheckpoint{}
	sink := &mockSink{swapErr: errors.New("disk full")}

	p := newTestPipeline(t, swaps, prices, cp, sink)

	_, err := p.Run(context.Background())
	require.Error(t, err)

	var stageErr *types.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, types.Writing, stageErr.Stage)
	assert.Empty(t, cp.writes, "checkpoint must not advance past unwritten data")
}

func TestRunCheckpointFailureIsFatal(t *testing.T) {
	swaps := &mockSwaps{swaps: []models.RawSwap{rawSwap("0xaaa", "100")}}
	prices := &mockPrices{prices: usdPrices()}
	cp := &mockCheckpoint{writeErr: errors.New("read-only filesystem")}
	sink := &mockSink{}

	p := newTestPipeline(t, swaps, prices, cp, sink)

	_, err := p.Run(context.Background())
	require.Error(t, err)

	var stageErr *types.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, types.CheckpointUpdate, stageErr.Stage)
}

func TestRunIsIdempotentAcrossRuns(t *testing.T) {
	swaps := &mockSwaps{swaps: []models.RawSwap{
		rawSwap("0xaaa", "100"),
		rawSwap("0xbbb", "105"),
	}}
	prices := &mockPrices{prices: usdPrices()}
	cp := &mockCheckpoint{}
	sink := &mockSink{}

	p := newTestPipeline(t, swaps, prices, cp, sink)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	// Second run sees the same batch; everything is at or below the
	// checkpoint now, so nothing is written again.
	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, stats.New)
	assert.Equal(t, 2, stats.FilteredOld)
	assert.Len(t, sink.swaps, 1)
	assert.Equal(t, []uint64{105}, cp.writes)
}

func TestRunRejectsMalformedAndContinues(t *testing.T) {
	bad := rawSwap("0xbad", "not-a-number")
	swaps := &mockSwaps{swaps: []models.RawSwap{bad, rawSwap("0xaaa", "100")}}
	prices := &mockPrices{prices: usdPrices()}
	cp := &mockCheckpoint{}
	sink := &mockSink{}

	p := newTestPipeline(t, swaps, prices, cp, sink)

	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Fetched)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 1, stats.New)
}

// recordingHandler captures log records so tests can assert on
// warnings the pipeline emits.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) hasWarning(substr string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.records {
		if r.Level == slog.LevelWarn && strings.Contains(r.Message, substr) {
			return true
		}
	}
	return false
}

func TestRunWarnsOnCheckpointGap(t *testing.T) {
	swaps := &mockSwaps{swaps: []models.RawSwap{rawSwap("0xaaa", "105")}}
	prices := &mockPrices{prices: usdPrices()}
	cp := &mockCheckpoint{block: 100}
	sink := &mockSink{}
	handler := &recordingHandler{}

	p, err := NewPipeline(PipelineOpts{
		Swaps:      swaps,
		Prices:     prices,
		Checkpoint: cp,
		Sinks:      []output.Sink{sink},
		Logger:     slog.New(handler),
	})
	require.NoError(t, err)

	// Blocks 101-104 are missing between the checkpoint and the oldest
	// new swap: the run continues but must flag the gap.
	_, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, handler.hasWarning("gap between checkpoint"))
}

func TestRunNoGapWarningOnFirstRun(t *testing.T) {
	swaps := &mockSwaps{swaps: []models.RawSwap{rawSwap("0xaaa", "105")}}
	prices := &mockPrices{prices: usdPrices()}
	cp := &mockCheckpoint{}
	sink := &mockSink{}
	handler := &recordingHandler{}

	p, err := NewPipeline(PipelineOpts{
		Swaps:      swaps,
		Prices:     prices,
		Checkpoint: cp,
		Sinks:      []output.Sink{sink},
		Logger:     slog.New(handler),
	})
	require.NoError(t, err)

	// No checkpoint yet: any starting block is fine.
	_, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, handler.hasWarning("gap between checkpoint"))
}

func TestRunNoGapWarningOnContiguousBatch(t *testing.T) {
	swaps := &mockSwaps{swaps: []models.RawSwap{rawSwap("0xaaa", "101")}}
	prices := &mockPrices{prices: usdPrices()}
	cp := &mockCheckpoint{block: 100}
	sink := &mockSink{}
	handler := &recordingHandler{}

	p, err := NewPipeline(PipelineOpts{
		Swaps:      swaps,
		Prices:     prices,
		Checkpoint: cp,
		Sinks:      []output.Sink{sink},
		Logger:     slog.New(handler),
	})
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, handler.hasWarning("gap between checkpoint"))
}

func TestNewPipelineValidatesOpts(t *testing.T) {
	_, err := NewPipeline(PipelineOpts{})
	assert.Error(t, err)

	_, err = NewPipeline(PipelineOpts{
		Swaps:      &mockSwaps{},
		Prices:     &mockPrices{},
		Checkpoint: &mockCheckpoint{},
	})
	assert.Error(t, err, "sinks are required")
}
