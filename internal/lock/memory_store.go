package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for testing and
// single-instance deployments. Expiry is evaluated lazily on every
// operation; Purge exists only to keep the map from growing unbounded.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[ResourceKey]*Record

	// now is replaceable in tests to drive expiry deterministically.
	now func() time.Time
}

// NewMemoryStore creates a new in-memory lock store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[ResourceKey]*Record),
		now:     time.Now,
	}
}

// Acquire implements Store.Acquire. The store mutex makes the
// read-decide-write sequence atomic.
func (s *MemoryStore) Acquire(ctx context.Context, key ResourceKey, holderID string, ttl time.Duration) (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	existing, ok := s.records[key]
	if ok && !existing.Expired(now) && existing.HolderID != holderID {
		// Another holder's live record wins; return a copy so callers
		// cannot mutate stored state.
		denied := *existing
		return &denied, false, nil
	}

	acquiredAt := now
	if ok && existing.HolderID == holderID && !existing.Expired(now) {
		// Renewal preserves the original acquisition time.
		acquiredAt = existing.AcquiredAt
	}

	rec := &Record{
		Key:        key,
		HolderID:   holderID,
		AcquiredAt: acquiredAt,
		ExpiresAt:  now.Add(ttl),
	}
	s.records[key] = rec

	granted := *rec
	return &granted, true, nil
}

// Release implements Store.Release.
func (s *MemoryStore) Release(ctx context.Context, key ResourceKey, holderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[key]
	if !ok || existing.Expired(s.now()) || existing.HolderID != holderID {
		return ErrNotHeld
	}

	delete(s.records, key)
	return nil
}

// Get implements Store.Get.
func (s *MemoryStore) Get(ctx context.Context, key ResourceKey) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	existing, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	rec := *existing
	return &rec, nil
}

// Purge implements Store.Purge.
func (s *MemoryStore) Purge(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var removed int64
	for key, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored records, expired included (for testing).
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
