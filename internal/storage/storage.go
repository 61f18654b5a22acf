// Package storage defines the key/value blob-store contract the service is
// built on. The only write primitive with concurrency semantics is
// ConditionalReplace: a metadata overwrite guarded by the object's current
// version tag. Everything else is plain get/put/head.
package storage

import (
	"context"
	"errors"
	"time"
)

// Content types used across backends.
const (
	ContentTypeJSON        = "application/json; charset=utf-8"
	ContentTypeOctetStream = "application/octet-stream"
	ContentTypeCSV         = "text/csv; charset=utf-8"
)

var (
	// ErrNotFound indicates the requested key is missing.
	ErrNotFound = errors.New("storage: not found")
	// ErrCASMismatch indicates another writer won the race; the caller must
	// re-read the current version and retry.
	ErrCASMismatch = errors.New("storage: cas mismatch")
	// ErrAccessDenied indicates the store rejected the credentials or policy.
	ErrAccessDenied = errors.New("storage: access denied")
)

// PutOptions controls unconditional writes.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// HeadResult carries an object's version tag and user metadata without its
// body.
type HeadResult struct {
	VersionTag string
	Metadata   map[string]string
}

// Backend is the uniform blob-store client. Implementations map their native
// failure modes onto ErrNotFound, ErrCASMismatch and ErrAccessDenied; any
// other error is treated as the store being unavailable.
type Backend interface {
	// Get returns the object body at key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put unconditionally writes the object at key.
	Put(ctx context.Context, key string, body []byte, opts PutOptions) error
	// Head returns version tag and metadata without fetching the body.
	Head(ctx context.Context, key string) (HeadResult, error)
	// ConditionalReplace swaps the object's metadata for newMetadata only if
	// the object's current version tag equals expectedTag. On success the new
	// version tag is returned; on a lost race the error is ErrCASMismatch.
	ConditionalReplace(ctx context.Context, key string, newMetadata map[string]string, expectedTag string) (string, error)
}

// SignRequest describes a short-lived download URL for a stored object. The
// attachment filename forces download instead of inline render.
type SignRequest struct {
	Key         string
	Filename    string
	ContentType string
	TTL         time.Duration
}

// URLSigner issues time-limited signed URLs scoped to a single object.
type URLSigner interface {
	SignURL(ctx context.Context, req SignRequest) (string, error)
}

// Pinger verifies store reachability for readiness probes.
type Pinger interface {
	Ping(ctx context.Context) error
}
