package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/storefront-review-crawler/internal/crawler"
)

// RetrievalStore keeps render audit rows in memory for development and tests.
type RetrievalStore struct {
	mu      sync.RWMutex
	records []crawler.RetrievalRecord
	ids     map[string]struct{}
}

// NewRetrievalStore constructs a RetrievalStore.
func NewRetrievalStore() *RetrievalStore {
	return &RetrievalStore{ids: make(map[string]struct{})}
}

// StoreRetrieval appends a record. IDs must be unique.
func (s *RetrievalStore) StoreRetrieval(_ context.Context, record crawler.RetrievalRecord) error {
	if record.ID == "" {
		return errors.New("record id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.ids[record.ID]; dup {
		return errors.New("retrieval already exists")
	}
	s.ids[record.ID] = struct{}{}
	s.records = append(s.records, record)
	return nil
}

// Records returns a copy of the stored rows in insertion order.
func (s *RetrievalStore) Records() []crawler.RetrievalRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]crawler.RetrievalRecord(nil), s.records...)
}
