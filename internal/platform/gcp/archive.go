package gcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"cloud.google.com/go/storage"

	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
)

// Archive keeps a copy of every fetched document next to the retrieval store.
type Archive interface {
	// Put writes the object and returns the key it was stored under.
	Put(ctx context.Context, courseID, docKey, contentType string, data []byte) (string, error)
	Close() error
}

type gcsArchive struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
	prefix string
}

// NewArchive returns nil, nil when archiving is disabled.
func NewArchive(ctx context.Context, log *logger.Logger, cfg ArchiveConfig) (Archive, error) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled() {
		return nil, nil
	}
	client, err := storage.NewClient(ctx, cfg.clientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	serviceLog := log.With("service", "DocumentArchive")
	serviceLog.Info("Object storage initialized", "mode", cfg.Mode, "bucket", cfg.Bucket, "emulator_host", cfg.EmulatorHost)
	return &gcsArchive{log: serviceLog, client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// ObjectKey is <prefix>/<courseID>/<docKey>.
func ObjectKey(prefix, courseID, docKey string) string {
	return path.Join(prefix, courseID, docKey)
}

func (a *gcsArchive) Put(ctx context.Context, courseID, docKey, contentType string, data []byte) (string, error) {
	key := ObjectKey(a.prefix, courseID, docKey)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{"course_id": courseID}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return key, nil
}

func (a *gcsArchive) Close() error { return a.client.Close() }
