// Package checkpoint persists per-window phase results so an interrupted run
// can resume without repeating network work.
package checkpoint

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/JakeFAU/news-harvester/internal/harvest"
	"github.com/JakeFAU/news-harvester/internal/storage/local"
)

// Key identifies one window of one publisher selection.
type Key struct {
	Label  string
	Window harvest.Window
}

func (k Key) String() string {
	return k.Label + ":" + k.Window.Key()
}

// Store maps (key, phase) pairs to artifacts. Identifier checkpoints live
// under the state store, content checkpoints under the output store.
type Store struct {
	state  *local.BlobStore
	output *local.BlobStore
}

// New builds a Store over the given state and output directories.
func New(state, output *local.BlobStore) (*Store, error) {
	if state == nil || output == nil {
		return nil, fmt.Errorf("checkpoint: state and output stores are required")
	}
	return &Store{state: state, output: output}, nil
}

// Output exposes the store holding content checkpoints and merged artifacts.
func (s *Store) Output() *local.BlobStore {
	return s.output
}

// Path returns the artifact path for (key, phase), relative to its store.
func (s *Store) Path(key Key, phase harvest.Phase) (string, error) {
	if key.Label == "" {
		return "", fmt.Errorf("checkpoint: label is required")
	}
	anchor := periodDay(key.Window)
	year := strconv.Itoa(anchor.Year())
	switch phase {
	case harvest.PhaseIdentifiers:
		return path.Join(key.Label+"_data_id", year, key.Window.Key()+".txt"), nil
	case harvest.PhaseContent:
		dir := ContentDir(key.Label, anchor.Year(), int(anchor.Month()))
		return path.Join(dir, key.Label+"_"+key.Window.Key()+".jsonl"), nil
	default:
		return "", fmt.Errorf("checkpoint: unknown phase %q", phase)
	}
}

// periodDay is the day that places a window in its reporting period. An
// inverted trailing window begins the day after its period ends, so it is
// filed under its end.
func periodDay(w harvest.Window) time.Time {
	if w.Inverted() {
		return w.End
	}
	return w.Begin
}

// ContentDir is the directory holding a month's content checkpoints.
func ContentDir(label string, year, month int) string {
	return path.Join(label, strconv.Itoa(year), fmt.Sprintf("%02d", month))
}

// MergedPath is the merged artifact path for a month.
func MergedPath(label string, year, month int) string {
	return path.Join(label, strconv.Itoa(year), fmt.Sprintf("%s_%d_%02d.jsonl", label, year, month))
}

func (s *Store) storeFor(phase harvest.Phase) *local.BlobStore {
	if phase == harvest.PhaseIdentifiers {
		return s.state
	}
	return s.output
}

// Exists reports whether the phase already completed for key.
func (s *Store) Exists(key Key, phase harvest.Phase) (bool, error) {
	p, err := s.Path(key, phase)
	if err != nil {
		return false, err
	}
	ok, err := s.storeFor(phase).Exists(p)
	if err != nil {
		return false, fmt.Errorf("checkpoint exists %s: %w", key, err)
	}
	return ok, nil
}

// Write atomically stores data as the (key, phase) artifact.
func (s *Store) Write(ctx context.Context, key Key, phase harvest.Phase, data []byte) error {
	p, err := s.Path(key, phase)
	if err != nil {
		return err
	}
	if err := s.storeFor(phase).WriteBytes(ctx, p, data); err != nil {
		return fmt.Errorf("checkpoint write %s %s: %w", key, phase, err)
	}
	return nil
}

// Read returns the raw (key, phase) artifact.
func (s *Store) Read(ctx context.Context, key Key, phase harvest.Phase) ([]byte, error) {
	p, err := s.Path(key, phase)
	if err != nil {
		return nil, err
	}
	data, err := s.storeFor(phase).ReadObject(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("checkpoint read %s %s: %w", key, phase, err)
	}
	return data, nil
}

// WriteIdentifiers stores ids one per line.
func (s *Store) WriteIdentifiers(ctx context.Context, key Key, ids []harvest.NewsID) error {
	return s.Write(ctx, key, harvest.PhaseIdentifiers, EncodeIdentifiers(ids))
}

// ReadIdentifiers loads a stored identifier list.
func (s *Store) ReadIdentifiers(ctx context.Context, key Key) ([]harvest.NewsID, error) {
	data, err := s.Read(ctx, key, harvest.PhaseIdentifiers)
	if err != nil {
		return nil, err
	}
	return DecodeIdentifiers(data), nil
}

// WriteRecords stores records as JSON lines.
func (s *Store) WriteRecords(ctx context.Context, key Key, records []harvest.ArticleRecord) error {
	data, err := EncodeRecords(records)
	if err != nil {
		return fmt.Errorf("checkpoint encode %s: %w", key, err)
	}
	return s.Write(ctx, key, harvest.PhaseContent, data)
}

// ReadRecords loads stored records. A malformed line is an error.
func (s *Store) ReadRecords(ctx context.Context, key Key) ([]harvest.ArticleRecord, error) {
	data, err := s.Read(ctx, key, harvest.PhaseContent)
	if err != nil {
		return nil, err
	}
	records, err := DecodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("checkpoint decode %s: %w", key, err)
	}
	return records, nil
}
