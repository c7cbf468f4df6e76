// Package storage hides where session artifacts live. Clients never stream
// artifacts through the API: they get a short lived signed URL instead.
package storage

import (
	"context"
	"time"
)

type SignedUpload struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	ExpiresAt time.Time         `json:"expires_at"`
}

type BlobStore interface {
	// SignedUploadURL authorizes a single PUT of exactly size bytes to objectPath.
	SignedUploadURL(ctx context.Context, objectPath, contentType string, size int64, ttl time.Duration) (*SignedUpload, error)
	PublicURL(objectPath string) string
	Put(ctx context.Context, objectPath, contentType string, data []byte) error
	Exists(ctx context.Context, objectPath string) (bool, error)
	Delete(ctx context.Context, objectPath string) error
}
