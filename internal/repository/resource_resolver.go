package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/vanishedbrands/download-service/internal/storage"
)

// ResourceResolver picks the object key of the downloadable artifact when a
// token or order does not pin one: configured fallback first, then the
// manifest's latest pointer.
type ResourceResolver struct {
	backend     storage.Backend
	manifestKey string
	fallback    string
}

// NewResourceResolver instantiates the resolver.
func NewResourceResolver(backend storage.Backend, manifestKey, fallback string) *ResourceResolver {
	return &ResourceResolver{backend: backend, manifestKey: manifestKey, fallback: fallback}
}

// ErrNoResource indicates neither a fallback key nor a manifest entry exists.
var ErrNoResource = errors.New("repository: no resource key configured")

type manifest struct {
	Latest string `json:"latest"`
}

// Resolve returns the effective resource key.
func (r *ResourceResolver) Resolve(ctx context.Context) (string, error) {
	if r.fallback != "" {
		return r.fallback, nil
	}
	body, err := r.backend.Get(ctx, r.manifestKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrNoResource
		}
		return "", err
	}
	var m manifest
	if err := json.Unmarshal(body, &m); err != nil || m.Latest == "" {
		return "", ErrNoResource
	}
	return m.Latest, nil
}
