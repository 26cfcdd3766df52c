package output

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/phoenix-network/phoenix-pipeline/models"
)

// FileSink writes swaps.json and summary.csv into a directory. Each
// artifact gets a sibling <file>.hash holding a SHA-256 of its
// content; an unchanged artifact is not rewritten.
type FileSink struct {
	dir    string
	logger *slog.Logger
}

type FileSinkOpts struct {
	Dir    string
	Logger *slog.Logger
}

func NewFileSink(opts FileSinkOpts) (*FileSink, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &FileSink{dir: opts.Dir, logger: opts.Logger}, nil
}

func (s *FileSink) WriteSwaps(_ context.Context, swaps []models.EnrichedSwap) error {
	data, err := json.MarshalIndent(swaps, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal swaps: %w", err)
	}

	path := filepath.Join(s.dir, "swaps.json")
	written, err := s.writeWithHash(path, data)
	if err != nil {
		return err
	}
	if written {
		s.logger.Info("wrote enriched swaps", "path", path, "swaps", len(swaps))
	} else {
		s.logger.Info("enriched swaps unchanged, skipping write", "path", path)
	}
	return nil
}

func (s *FileSink) WriteSummary(_ context.Context, summary []models.PairSummary) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"pair", "count", "totalUSD", "avgUSD"}); err != nil {
		return fmt.Errorf("failed to write summary header: %w", err)
	}
	for _, row := range summary {
		record := []string{
			row.PairKey,
			strconv.Itoa(row.Count),
			row.TotalUSD.StringFixed(2),
			row.AvgUSD.StringFixed(2),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush summary: %w", err)
	}

	path := filepath.Join(s.dir, "summary.csv")
	written, err := s.writeWithHash(path, buf.Bytes())
	if err != nil {
		return err
	}
	if written {
		s.logger.Info("wrote pair summary", "path", path, "pairs", len(summary))
	} else {
		s.logger.Info("pair summary unchanged, skipping write", "path", path)
	}
	return nil
}

// writeWithHash writes data to path unless the existing content hash
// matches, and records the new hash next to the file. Returns whether
// the file was written.
func (s *FileSink) writeWithHash(path string, data []byte) (bool, error) {
	sum := sha256.Sum256(data)
	newHash := hex.EncodeToString(sum[:])
	hashPath := path + ".hash"

	if existing, err := os.ReadFile(hashPath); err == nil {
		if _, statErr := os.Stat(path); statErr == nil && string(existing) == newHash {
			return false, nil
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.WriteFile(hashPath, []byte(newHash), 0o644); err != nil {
		// The artifact itself is written; a missing hash file only
		// costs a redundant rewrite next run.
		s.logger.Warn("failed to write hash file", "path", hashPath, "error", err)
	}
	return true, nil
}
