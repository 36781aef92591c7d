// Package gcsuploader stores raw statement files in Google Cloud Storage and
// reads statements dropped there for asynchronous ingest.
package gcsuploader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// ArchivePrefix is where uploaded statements are archived.
const ArchivePrefix = "statements"

// Store is a bucket-bound GCS client.
type Store struct {
	client *storage.Client
	bucket string
}

// NewStore creates a GCS client for bucket. Without options it relies on
// Application Default Credentials (gcloud auth application-default login).
func NewStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("NewStore: bucket is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Store{client: client, bucket: bucket}, nil
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Bucket returns the bucket name.
func (s *Store) Bucket() string {
	return s.bucket
}

// Archive implements reconcile.Archiver. The object lands under
// statements/<owner>/<batch>/<filename>.
func (s *Store) Archive(ctx context.Context, ownerID, batchID, filename string, data []byte) (string, error) {
	object := ArchiveObjectName(ownerID, batchID, filename)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType(filename)
	w.Metadata = map[string]string{"owner_id": ownerID, "batch_id": batchID}

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Archive: write %s: %w", object, err)
	}
	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Archive: finalize upload: %w", err)
	}
	return URI(s.bucket, object), nil
}

// UploadFile uploads a local file under the given object name.
func (s *Store) UploadFile(ctx context.Context, objectName, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open file %q: %w", filePath, err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType(filePath)

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy file to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

// ArchiveObjectName builds the archive object path. Path separators in the
// filename are flattened so a client cannot escape its prefix.
func ArchiveObjectName(ownerID, batchID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "statement"
	}
	return path.Join(ArchivePrefix, ownerID, batchID, name)
}

// URI formats a gs:// URI.
func URI(bucket, object string) string {
	return "gs://" + bucket + "/" + object
}

func contentType(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".ofx", ".qfx":
		return "application/x-ofx"
	case ".csv":
		return "text/csv"
	default:
		return "text/plain"
	}
}
