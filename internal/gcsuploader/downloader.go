package gcsuploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// ErrTooLarge is returned when an object exceeds the allowed size.
var ErrTooLarge = errors.New("object exceeds maximum size")

// ParseURI splits gs://bucket/path/to/file into bucket and object.
func ParseURI(gcsURI string) (bucket, object string, err error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}
	parts := strings.SplitN(strings.TrimPrefix(gcsURI, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}
	return parts[0], parts[1], nil
}

// ExtractFilenameFromGCSURI extracts the filename from a GCS URI.
// e.g., "gs://bucket/folder/file.ofx" → "file.ofx"
func ExtractFilenameFromGCSURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}

// Fetch downloads the object at gcsURI. A maxBytes of zero disables the
// size check.
func (s *Store) Fetch(ctx context.Context, gcsURI string, maxBytes int64) ([]byte, error) {
	bucket, object, err := ParseURI(gcsURI)
	if err != nil {
		return nil, err
	}

	rc, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if maxBytes > 0 {
		r = io.LimitReader(rc, maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("Fetch: %s: %w (%d bytes)", gcsURI, ErrTooLarge, maxBytes)
	}
	return data, nil
}

// List returns the gs:// URIs of the objects under prefix in the store
// bucket. Directory placeholders are skipped.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var uris []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("List: %s: %w", prefix, err)
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		uris = append(uris, URI(s.bucket, attrs.Name))
	}
	return uris, nil
}

// Move copies the object to dstObject in the same bucket and deletes the
// source, returning the new URI.
func (s *Store) Move(ctx context.Context, gcsURI, dstObject string) (string, error) {
	bucket, object, err := ParseURI(gcsURI)
	if err != nil {
		return "", err
	}
	src := s.client.Bucket(bucket).Object(object)
	dst := s.client.Bucket(bucket).Object(dstObject)

	if _, err := dst.CopierFrom(src).Run(ctx); err != nil {
		return "", fmt.Errorf("Move: copy %s -> %s: %w", object, dstObject, err)
	}
	if err := src.Delete(ctx); err != nil {
		return "", fmt.Errorf("Move: delete %s: %w", object, err)
	}
	return URI(bucket, dstObject), nil
}
