package store

import (
	"context"
	"sync"

	"github.com/raceline/market-engine/internal/model"
)

// MemoryStore implements Store with in-memory slices. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	journal   []model.JournalEntry
	snapshots []model.EngineSnapshot
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) AppendJournal(_ context.Context, entry *model.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.journal = append(s.journal, *entry)
	return nil
}

func (s *MemoryStore) JournalByAccount(_ context.Context, account model.Account) ([]model.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.JournalEntry
	for _, e := range s.journal {
		if e.Account == account {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) Journal(_ context.Context) ([]model.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.JournalEntry, len(s.journal))
	copy(out, s.journal)
	return out, nil
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snap *model.EngineSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots = append(s.snapshots, *snap)
	return nil
}

func (s *MemoryStore) LatestSnapshot(_ context.Context) (*model.EngineSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.snapshots) == 0 {
		return nil, nil
	}
	latest := s.snapshots[0]
	for _, snap := range s.snapshots[1:] {
		if snap.Sequence > latest.Sequence {
			latest = snap
		}
	}
	return &latest, nil
}
