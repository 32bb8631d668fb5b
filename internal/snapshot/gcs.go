package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/redirect-chains/internal/redirect"
)

const csvContentType = "text/csv; charset=utf-8"

// GCSConfig names the object that mirrors the chain table.
type GCSConfig struct {
	Bucket string
	Object string
}

// GCSWriter uploads the full chain table to a Cloud Storage object.
type GCSWriter struct {
	client *storage.Client
	bucket string
	object string
}

// NewGCSWriter creates a GCS mirror.
func NewGCSWriter(client *storage.Client, cfg GCSConfig) (*GCSWriter, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if cfg.Object == "" {
		cfg.Object = "redirect_chains.csv"
	}
	return &GCSWriter{client: client, bucket: cfg.Bucket, object: cfg.Object}, nil
}

// URI returns the gs:// location of the table.
func (w *GCSWriter) URI() string {
	return fmt.Sprintf("gs://%s/%s", w.bucket, w.object)
}

// Persist implements redirect.Persister.
func (w *GCSWriter) Persist(ctx context.Context, entries []redirect.Entry) error {
	payload, err := EncodeBytes(entries)
	if err != nil {
		return err
	}
	writer := w.client.Bucket(w.bucket).Object(w.object).NewWriter(ctx)
	writer.ContentType = csvContentType
	if _, err := io.Copy(writer, bytes.NewReader(payload)); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// LoadGCS reads a table previously mirrored to Cloud Storage. A missing
// object is an empty table.
func LoadGCS(ctx context.Context, client *storage.Client, cfg GCSConfig) ([]redirect.Entry, error) {
	w, err := NewGCSWriter(client, cfg)
	if err != nil {
		return nil, err
	}
	reader, err := client.Bucket(w.bucket).Object(w.object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", w.URI(), err)
	}
	defer func() { _ = reader.Close() }()
	entries, err := Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", w.URI(), err)
	}
	return entries, nil
}
