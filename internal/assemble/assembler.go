// Package assemble merges a reporting period's content checkpoints into one
// artifact.
package assemble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/news-harvester/internal/checkpoint"
	"github.com/JakeFAU/news-harvester/internal/harvest"
	"github.com/JakeFAU/news-harvester/internal/hash/sha256"
	"github.com/JakeFAU/news-harvester/internal/storage/local"
)

// ErrNoArtifacts is returned when a period has nothing to merge.
var ErrNoArtifacts = errors.New("no content artifacts to merge")

// Result describes a merged artifact.
type Result struct {
	Label string
	Month time.Time
	// Path is relative to the output store.
	Path   string
	URI    string
	Count  int
	Parts  int
	SHA256 string
}

// Assembler merges content checkpoints held in the output store.
type Assembler struct {
	out    *local.BlobStore
	hasher *sha256.Hasher
	logger *zap.Logger
}

// New builds an Assembler over the output store.
func New(out *local.BlobStore, logger *zap.Logger) (*Assembler, error) {
	if out == nil {
		return nil, errors.New("assemble: output store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{out: out, hasher: sha256.New(), logger: logger.Named("assemble")}, nil
}

// Merged reports whether the month's merged artifact already exists.
func (a *Assembler) Merged(label string, month time.Time) (bool, error) {
	return a.out.Exists(checkpoint.MergedPath(label, month.Year(), int(month.Month())))
}

// Merge concatenates the month's content artifacts in filename order, writes
// the merged artifact atomically and removes the intermediates. Nothing is
// written or removed when any artifact fails to read.
func (a *Assembler) Merge(ctx context.Context, label string, month time.Time) (Result, error) {
	year, mon := month.Year(), int(month.Month())
	dir := checkpoint.ContentDir(label, year, mon)
	names, err := a.out.List(dir, label+"_*.jsonl")
	if err != nil {
		return Result{}, err
	}
	if len(names) == 0 {
		return Result{}, fmt.Errorf("%w in %s", ErrNoArtifacts, dir)
	}

	var merged []harvest.ArticleRecord
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		data, err := a.out.ReadObject(ctx, path.Join(dir, name))
		if err != nil {
			return Result{}, err
		}
		records, err := checkpoint.DecodeRecords(data)
		if err != nil {
			return Result{}, fmt.Errorf("read %s: %w", name, err)
		}
		merged = append(merged, records...)
	}

	data, err := checkpoint.EncodeRecords(merged)
	if err != nil {
		return Result{}, err
	}
	digest, err := a.hasher.Hash(data)
	if err != nil {
		return Result{}, err
	}
	target := checkpoint.MergedPath(label, year, mon)
	uri, err := a.out.PutObject(ctx, target, "application/x-ndjson", bytes.NewReader(data))
	if err != nil {
		return Result{}, err
	}

	for _, name := range names {
		if err := a.out.Remove(path.Join(dir, name)); err != nil {
			return Result{}, err
		}
	}
	if err := a.out.RemoveDirIfEmpty(dir); err != nil {
		return Result{}, err
	}

	res := Result{
		Label:  label,
		Month:  time.Date(year, month.Month(), 1, 0, 0, 0, 0, time.UTC),
		Path:   target,
		URI:    uri,
		Count:  len(merged),
		Parts:  len(names),
		SHA256: digest,
	}
	a.logger.Info("period merged",
		zap.String("label", label),
		zap.String("path", target),
		zap.Int("records", res.Count),
		zap.Int("parts", res.Parts),
	)
	return res, nil
}

// Load reads back the records of a merged artifact.
func (a *Assembler) Load(ctx context.Context, res Result) ([]harvest.ArticleRecord, error) {
	data, err := a.out.ReadObject(ctx, res.Path)
	if err != nil {
		return nil, err
	}
	return checkpoint.DecodeRecords(data)
}
