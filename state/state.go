// Package state persists the pipeline checkpoint: the highest block
// number fully processed, written only after a run has durably
// persisted all of its outputs.
package state

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"

	"github.com/phoenix-network/phoenix-pipeline/models"
)

type Store struct {
	path   string
	logger *slog.Logger
}

type StoreOpts struct {
	Path   string
	Logger *slog.Logger
}

func NewStore(opts StoreOpts) *Store {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{path: opts.Path, logger: opts.Logger}
}

// Read returns the persisted checkpoint, or a zero-valued one when no
// checkpoint file exists yet. A corrupted checkpoint is a recoverable
// condition: it is logged as a warning and treated as "no checkpoint"
// so the run proceeds as a first run.
func (s *Store) Read() (models.Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("no checkpoint file found, starting from block 0", "path", s.path)
			return models.Checkpoint{}, nil
		}
		return models.Checkpoint{}, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp models.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		s.logger.Warn("checkpoint file is corrupt, treating as no checkpoint", "path", s.path, "error", err)
		return models.Checkpoint{}, nil
	}

	s.logger.Info("loaded checkpoint", "lastProcessedBlock", cp.LastProcessedBlock)
	return cp, nil
}

// Write persists the checkpoint atomically: the new content is written
// to a temporary file in the same directory and renamed over the old
// one, so a reader never observes a partially written checkpoint. A
// block lower than the stored one is a no-op, keeping the checkpoint
// monotonically non-decreasing across runs.
func (s *Store) Write(block uint64) error {
	current, err := s.Read()
	if err != nil {
		return err
	}
	if block < current.LastProcessedBlock {
		s.logger.Warn("refusing to move checkpoint backwards",
			"current", current.LastProcessedBlock, "requested", block)
		return nil
	}

	cp := models.Checkpoint{
		LastProcessedBlock: block,
		LastUpdatedAt:      time.Now().UTC(),
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp checkpoint: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}

	s.logger.Info("checkpoint updated", "lastProcessedBlock", block)
	return nil
}
