package cache

import (
	"context"
	"sync"
	"time"

	"github.com/vladimiradmaev/dosekit/internal/domain"
)

// DefaultTTL bounds how long a computed timeline stays valid without being
// invalidated by new data.
const DefaultTTL = 15 * time.Minute

// Store caches computed timelines per user so repeated reads between data
// changes skip the full recomputation.
type Store interface {
	GetInsulinOnBoard(ctx context.Context, userID uint) ([]domain.InsulinValue, bool)
	SetInsulinOnBoard(ctx context.Context, userID uint, values []domain.InsulinValue)
	GetCarbsOnBoard(ctx context.Context, userID uint) ([]domain.CarbValue, bool)
	SetCarbsOnBoard(ctx context.Context, userID uint, values []domain.CarbValue)
	InvalidateUser(ctx context.Context, userID uint)
	Close() error
}

type memoryEntry struct {
	iob       []domain.InsulinValue
	cob       []domain.CarbValue
	iobSetAt  time.Time
	cobSetAt  time.Time
	hasIOB    bool
	hasCarbOB bool
}

// MemoryStore keeps timelines in process memory.
type MemoryStore struct {
	entries map[uint]*memoryEntry
	ttl     time.Duration
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory timeline store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[uint]*memoryEntry),
		ttl:     DefaultTTL,
	}
}

// GetInsulinOnBoard returns the cached insulin-on-board timeline for a user.
func (s *MemoryStore) GetInsulinOnBoard(_ context.Context, userID uint) ([]domain.InsulinValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, exists := s.entries[userID]
	if !exists || !entry.hasIOB || time.Since(entry.iobSetAt) > s.ttl {
		return nil, false
	}
	return entry.iob, true
}

// SetInsulinOnBoard stores the insulin-on-board timeline for a user.
func (s *MemoryStore) SetInsulinOnBoard(_ context.Context, userID uint, values []domain.InsulinValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.entry(userID)
	entry.iob = values
	entry.iobSetAt = time.Now()
	entry.hasIOB = true
}

// GetCarbsOnBoard returns the cached carbs-on-board timeline for a user.
func (s *MemoryStore) GetCarbsOnBoard(_ context.Context, userID uint) ([]domain.CarbValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, exists := s.entries[userID]
	if !exists || !entry.hasCarbOB || time.Since(entry.cobSetAt) > s.ttl {
		return nil, false
	}
	return entry.cob, true
}

// SetCarbsOnBoard stores the carbs-on-board timeline for a user.
func (s *MemoryStore) SetCarbsOnBoard(_ context.Context, userID uint, values []domain.CarbValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.entry(userID)
	entry.cob = values
	entry.cobSetAt = time.Now()
	entry.hasCarbOB = true
}

// InvalidateUser drops all cached timelines for a user.
func (s *MemoryStore) InvalidateUser(_ context.Context, userID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
}

// Close releases resources held by the store.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) entry(userID uint) *memoryEntry {
	entry, exists := s.entries[userID]
	if !exists {
		entry = &memoryEntry{}
		s.entries[userID] = entry
	}
	return entry
}
