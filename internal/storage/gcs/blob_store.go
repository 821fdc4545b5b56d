// Package gcs archives merged period artifacts to Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-harvester/internal/assemble"
	"github.com/JakeFAU/news-harvester/internal/storage/local"
)

// Config captures the parameters required to write to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name.
	Prefix string
}

// BlobStore writes artifacts to a configured GCS bucket.
type BlobStore struct {
	client *storage.Client
	cfg    Config
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	return &BlobStore{client: client, cfg: cfg}, nil
}

// ObjectName maps a store-relative path to its object name.
func (s *BlobStore) ObjectName(p string) string {
	if s.cfg.Prefix == "" {
		return p
	}
	return path.Join(s.cfg.Prefix, p)
}

// PutObject uploads data and returns a gs:// URI. metadata is attached to the
// object as custom metadata.
func (s *BlobStore) PutObject(
	ctx context.Context,
	p string,
	contentType string,
	r io.Reader,
	metadata map[string]string,
) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", errors.New("path is required")
	}
	name := s.ObjectName(p)
	writer := s.client.Bucket(s.cfg.Bucket).Object(name).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	writer.Metadata = metadata
	if _, err := io.Copy(writer, r); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.cfg.Bucket, name), nil
}

// Archive is a period sink copying merged artifacts into the bucket under the
// same relative path.
type Archive struct {
	store  *BlobStore
	out    *local.BlobStore
	logger *zap.Logger
}

// NewArchive builds an Archive reading merged files from out.
func NewArchive(store *BlobStore, out *local.BlobStore, logger *zap.Logger) (*Archive, error) {
	if store == nil || out == nil {
		return nil, errors.New("gcs archive: blob store and output store are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archive{store: store, out: out, logger: logger.Named("gcs")}, nil
}

// Name implements the period sink contract.
func (a *Archive) Name() string {
	return "gcs"
}

// Deliver uploads the merged artifact.
func (a *Archive) Deliver(ctx context.Context, res assemble.Result) error {
	full, err := a.out.Resolve(res.Path)
	if err != nil {
		return err
	}
	f, err := os.Open(full)
	if err != nil {
		return fmt.Errorf("open merged artifact: %w", err)
	}
	defer f.Close()

	uri, err := a.store.PutObject(ctx, res.Path, "application/x-ndjson", f, map[string]string{
		"label":   res.Label,
		"month":   res.Month.Format("2006-01"),
		"sha256":  res.SHA256,
		"records": fmt.Sprint(res.Count),
	})
	if err != nil {
		return err
	}
	a.logger.Info("merged artifact archived", zap.String("uri", uri), zap.String("sha256", res.SHA256))
	return nil
}
