package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockBackend is an in-memory RemoteBackend for testing. Failures can be
// injected per object-path substring or for all document uploads.
type MockBackend struct {
	mu         sync.RWMutex
	objects    map[string][]byte
	documents  map[string]map[string]map[string]interface{} // collection -> id -> doc
	nextDocID  int
	objectErrs map[string]error // path substring -> error
	uploadErr  error
}

// NewMockBackend creates an empty mock backend.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		objects:    make(map[string][]byte),
		documents:  make(map[string]map[string]map[string]interface{}),
		objectErrs: make(map[string]error),
	}
}

// Available reports true so sync passes run against the mock.
func (m *MockBackend) Available() bool {
	return true
}

// FailObjectPuts makes PutObject fail for any path containing substr.
func (m *MockBackend) FailObjectPuts(substr string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objectErrs[substr] = err
}

// FailUploads makes every document Upload fail with err (nil clears it).
func (m *MockBackend) FailUploads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadErr = err
}

// PutObject stores the blob in memory and returns a mock URL.
func (m *MockBackend) PutObject(_ context.Context, path string, blob []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for substr, err := range m.objectErrs {
		if strings.Contains(path, substr) {
			return "", err
		}
	}

	stored := make([]byte, len(blob))
	copy(stored, blob)
	m.objects[path] = stored

	return fmt.Sprintf("https://test-bucket.s3.us-east-1.amazonaws.com/%s", path), nil
}

// DeleteObject removes a blob from memory.
func (m *MockBackend) DeleteObject(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	return nil
}

// Upload creates or merge-updates an in-memory document, mirroring the S3
// backend's only-present-keys-overwrite semantics.
func (m *MockBackend) Upload(_ context.Context, collection string, payload map[string]interface{}, existingID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.uploadErr != nil {
		return "", m.uploadErr
	}

	docs, ok := m.documents[collection]
	if !ok {
		docs = make(map[string]map[string]interface{})
		m.documents[collection] = docs
	}

	id := existingID
	if id == "" {
		m.nextDocID++
		id = fmt.Sprintf("doc-%03d", m.nextDocID)
	}

	current, exists := docs[id]
	if !exists {
		current = make(map[string]interface{})
		docs[id] = current
	}
	for key, value := range payload {
		current[key] = value
	}

	return id, nil
}

// QueryByOwner returns every stored document whose ownerId matches userID.
func (m *MockBackend) QueryByOwner(_ context.Context, collection, userID string) ([]map[string]interface{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []map[string]interface{}
	for _, doc := range m.documents[collection] {
		if owner, ok := doc["ownerId"].(string); ok && owner == userID {
			out = append(out, doc)
		}
	}
	return out, nil
}

// ObjectExists checks if a blob exists in mock storage.
func (m *MockBackend) ObjectExists(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.objects[path]
	return exists
}

// Object returns a stored blob (for testing assertions).
func (m *MockBackend) Object(path string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob, exists := m.objects[path]
	return blob, exists
}

// ObjectCount returns how many blobs are stored.
func (m *MockBackend) ObjectCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// Document returns a stored document by collection and id.
func (m *MockBackend) Document(collection, id string) (map[string]interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, exists := m.documents[collection][id]
	return doc, exists
}

// DocumentCount returns how many documents a collection holds.
func (m *MockBackend) DocumentCount(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.documents[collection])
}

// Clear removes all stored blobs and documents.
func (m *MockBackend) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects = make(map[string][]byte)
	m.documents = make(map[string]map[string]map[string]interface{})
	m.objectErrs = make(map[string]error)
	m.uploadErr = nil
}
