package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ledgerflow/backend/internal/domain/bookkeeping"
)

// InMemoryTransmissionStore implements bookkeeping.TransmissionStore in process memory.
// It is suitable for single-instance deployments and testing.
type InMemoryTransmissionStore struct {
	mu     sync.Mutex
	claims map[string]time.Time
	refs   map[string]string
	now    func() time.Time
}

// NewInMemoryTransmissionStore creates an empty store
func NewInMemoryTransmissionStore() *InMemoryTransmissionStore {
	return &InMemoryTransmissionStore{
		claims: make(map[string]time.Time),
		refs:   make(map[string]string),
		now:    time.Now,
	}
}

// Claim takes eventID unless a live claim exists. Expired claims are dropped on the way.
func (s *InMemoryTransmissionStore) Claim(_ context.Context, eventID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, expiresAt := range s.claims {
		if !now.Before(expiresAt) {
			delete(s.claims, id)
		}
	}
	if _, held := s.claims[eventID]; held {
		return false, nil
	}
	s.claims[eventID] = now.Add(ttl)
	return true, nil
}

// Complete stores the voucher reference and drops the claim.
func (s *InMemoryTransmissionStore) Complete(_ context.Context, eventID, voucherRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[eventID] = voucherRef
	delete(s.claims, eventID)
	return nil
}

// Release drops the claim.
func (s *InMemoryTransmissionStore) Release(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, eventID)
	return nil
}

// VoucherRef returns the reference of a completed transmission.
func (s *InMemoryTransmissionStore) VoucherRef(_ context.Context, eventID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.refs[eventID]
	return ref, ok, nil
}

// Size returns the number of live claims (for testing/monitoring)
func (s *InMemoryTransmissionStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.claims)
}

var _ bookkeeping.TransmissionStore = (*InMemoryTransmissionStore)(nil)
