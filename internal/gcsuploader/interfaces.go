package gcsuploader

import "context"

// ObjectStore is the subset of Store used by the API and the worker.
type ObjectStore interface {
	Archive(ctx context.Context, ownerID, batchID, filename string, data []byte) (string, error)
	Fetch(ctx context.Context, gcsURI string, maxBytes int64) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Move(ctx context.Context, gcsURI, dstObject string) (string, error)
}

var _ ObjectStore = (*Store)(nil)
