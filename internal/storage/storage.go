package storage

import (
	"context"
	"io"
	"time"
)

// Package storage contains the blob store abstraction used for document payloads.
// Implementations must avoid using local disk and rely on streaming I/O only.

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1 and the implementation
// will buffer/chunk as supported by the backend.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about a stored object.
type ObjectInfo struct {
	Key          string
	ID           string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// BlobStore is the remote object store client used by the document service.
// Every method returns a *Error on failure.
type BlobStore interface {
	// Put uploads an object under the given path.
	Put(ctx context.Context, path string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Get downloads the full content of an object.
	Get(ctx context.Context, path string) ([]byte, error)
	// TemporaryLink returns a short-lived signed URL for the object.
	TemporaryLink(ctx context.Context, path string) (string, error)
	// CreateShareLink publishes the object under a revocable URL.
	CreateShareLink(ctx context.Context, path string) (string, error)
	// RevokeShareLink invalidates a URL returned by CreateShareLink.
	RevokeShareLink(ctx context.Context, link string) error
	// Delete removes an object by path.
	Delete(ctx context.Context, path string) error
	// Probe performs a lightweight call proving the store is reachable with valid credentials.
	Probe(ctx context.Context) error
}

// Fetcher performs a plain GET against a URL produced by a BlobStore.
type Fetcher interface {
	Fetch(ctx context.Context, link string) ([]byte, error)
}
