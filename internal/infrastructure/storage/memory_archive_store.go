package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/ledgerflow/backend/internal/domain/bookkeeping"
)

type memoryObject struct {
	content     []byte
	contentType string
}

// MemoryArchiveStore keeps archives in process memory. For development and tests only:
// nothing survives a restart.
type MemoryArchiveStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

// NewMemoryArchiveStore creates an empty store
func NewMemoryArchiveStore() *MemoryArchiveStore {
	return &MemoryArchiveStore{objects: make(map[string]memoryObject)}
}

// Put stores a copy of content and returns a mem:// URI.
func (s *MemoryArchiveStore) Put(_ context.Context, key string, content []byte, contentType string) (string, error) {
	if key == "" {
		return "", errors.New("storage key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = memoryObject{content: append([]byte(nil), content...), contentType: contentType}
	return "mem://" + key, nil
}

// Get returns a copy of the stored content.
func (s *MemoryArchiveStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, ErrArchiveNotFound
	}
	return append([]byte(nil), obj.content...), nil
}

// ContentType returns the content type an object was stored with.
func (s *MemoryArchiveStore) ContentType(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.objects[key].contentType
}

var _ bookkeeping.ArchiveStore = (*MemoryArchiveStore)(nil)
