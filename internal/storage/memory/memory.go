// Package memory provides an in-memory storage.Backend for tests and local
// development. Version tags follow the same replace-on-match discipline as
// the S3 backend, so CAS races can be exercised without a real store.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vanishedbrands/download-service/internal/storage"
)

type objectEntry struct {
	payload     []byte
	metadata    map[string]string
	contentType string
	etag        uint64
	updated     time.Time
}

// Store implements storage.Backend in memory.
type Store struct {
	mu   sync.Mutex
	objs map[string]*objectEntry
	seq  uint64
}

// New returns a ready to use in-memory store.
func New() *Store {
	return &Store{objs: make(map[string]*objectEntry)}
}

var _ storage.Backend = (*Store)(nil)
var _ storage.URLSigner = (*Store)(nil)
var _ storage.Pinger = (*Store)(nil)

// Get returns a copy of the object body at key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.objs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), entry.payload...), nil
}

// Put unconditionally writes the object at key, assigning a fresh version tag.
func (s *Store) Put(_ context.Context, key string, body []byte, opts storage.PutOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.objs[key] = &objectEntry{
		payload:     append([]byte(nil), body...),
		metadata:    copyMetadata(opts.Metadata),
		contentType: opts.ContentType,
		etag:        s.seq,
		updated:     time.Now(),
	}
	return nil
}

// Head returns the version tag and metadata for key.
func (s *Store) Head(_ context.Context, key string) (storage.HeadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.objs[key]
	if !ok {
		return storage.HeadResult{}, storage.ErrNotFound
	}
	return storage.HeadResult{
		VersionTag: formatTag(entry.etag),
		Metadata:   copyMetadata(entry.metadata),
	}, nil
}

// ConditionalReplace swaps metadata only when expectedTag matches the current
// version tag, mirroring a conditional metadata copy on a real object store.
func (s *Store) ConditionalReplace(_ context.Context, key string, newMetadata map[string]string, expectedTag string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.objs[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	if formatTag(entry.etag) != expectedTag {
		return "", storage.ErrCASMismatch
	}
	s.seq++
	entry.metadata = copyMetadata(newMetadata)
	entry.etag = s.seq
	entry.updated = time.Now()
	return formatTag(entry.etag), nil
}

// SignURL fabricates a deterministic pseudo-signed URL so download flows can
// be asserted end to end in tests.
func (s *Store) SignURL(_ context.Context, req storage.SignRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objs[req.Key]; !ok {
		return "", storage.ErrNotFound
	}
	expires := int64(req.TTL / time.Second)
	return fmt.Sprintf("memory://signed/%s?expires=%d&filename=%s", req.Key, expires, req.Filename), nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Delete removes the object at key; used by test fixtures.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objs[key]; !ok {
		return storage.ErrNotFound
	}
	delete(s.objs, key)
	return nil
}

// Keys lists stored keys with the given prefix, for test assertions.
func (s *Store) Keys(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.objs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys
}

func formatTag(seq uint64) string {
	return fmt.Sprintf("v%d", seq)
}

func copyMetadata(meta map[string]string) map[string]string {
	if meta == nil {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
