package services

import (
	"context"

	"github.com/priya-sharma/stitchbook-api/pkg/apperrors"
)

// RemoteBackend is the capability boundary for everything cloud-side: the
// document store, object storage and nothing else. The whole backend is
// optional; when unconfigured the application degrades to local-only
// operation and sync simply never runs.
type RemoteBackend interface {
	// Available reports whether the backend is configured and usable.
	Available() bool

	// Upload creates or merge-updates a document in collection. When
	// existingID is empty a new document id is assigned and returned;
	// otherwise the write goes to existingID and only keys present in
	// payload overwrite remote fields.
	Upload(ctx context.Context, collection string, payload map[string]interface{}, existingID string) (string, error)

	// QueryByOwner returns the documents in collection whose ownerId
	// matches userID. Only the currently-inactive download path reads it.
	QueryByOwner(ctx context.Context, collection, userID string) ([]map[string]interface{}, error)

	// PutObject stores a binary blob at the given path and returns its URL.
	PutObject(ctx context.Context, path string, blob []byte, contentType string) (string, error)

	// DeleteObject removes the blob at path.
	DeleteObject(ctx context.Context, path string) error
}

// NoopBackend is the null-object implementation selected at startup when no
// bucket is configured. Every call reports the backend unavailable.
type NoopBackend struct{}

// NewNoopBackend creates the unconfigured backend.
func NewNoopBackend() *NoopBackend {
	return &NoopBackend{}
}

// Available always reports false.
func (*NoopBackend) Available() bool {
	return false
}

// Upload always fails with ErrBackendUnavailable.
func (*NoopBackend) Upload(context.Context, string, map[string]interface{}, string) (string, error) {
	return "", apperrors.ErrBackendUnavailable
}

// QueryByOwner always fails with ErrBackendUnavailable.
func (*NoopBackend) QueryByOwner(context.Context, string, string) ([]map[string]interface{}, error) {
	return nil, apperrors.ErrBackendUnavailable
}

// PutObject always fails with ErrBackendUnavailable.
func (*NoopBackend) PutObject(context.Context, string, []byte, string) (string, error) {
	return "", apperrors.ErrBackendUnavailable
}

// DeleteObject always fails with ErrBackendUnavailable.
func (*NoopBackend) DeleteObject(context.Context, string) error {
	return apperrors.ErrBackendUnavailable
}
