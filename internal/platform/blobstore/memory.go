package blobstore

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/medconnect/medconnect/internal/platform/apperr"
)

// MemoryStore is a thread-safe in-memory Store for tests and development.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[uuid.UUID]*Blob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[uuid.UUID]*Blob)}
}

func (s *MemoryStore) Put(_ context.Context, b *Blob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	cp.Content = append([]byte(nil), b.Content...)
	s.blobs[b.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Blob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[id]
	if !ok {
		return nil, apperr.NotFound("file not found")
	}
	cp := *b
	return &cp, nil
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; !ok {
		return apperr.NotFound("file not found")
	}
	delete(s.blobs, id)
	return nil
}

// ListByOwner returns the owner's uploads newest first.
func (s *MemoryStore) ListByOwner(_ context.Context, ownerID uuid.UUID, limit, offset int) ([]*Metadata, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Metadata
	for _, b := range s.blobs {
		if b.OwnerID == ownerID {
			m := b.Metadata
			matched = append(matched, &m)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	if limit <= 0 {
		limit = 20
	}
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}
