package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/raceline/market-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) AppendJournal(ctx context.Context, entry *model.JournalEntry) error {
	if err := s.primary.AppendJournal(ctx, entry); err != nil {
		return err
	}
	// Invalidate the account's journal; next read re-populates.
	s.rdb.Del(ctx, journalKey(entry.Account))
	return nil
}

func (s *CachedStore) SaveSnapshot(ctx context.Context, snap *model.EngineSnapshot) error {
	if err := s.primary.SaveSnapshot(ctx, snap); err != nil {
		return err
	}
	s.cacheSnapshot(ctx, snap)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) JournalByAccount(ctx context.Context, account model.Account) ([]model.JournalEntry, error) {
	data, err := s.rdb.Get(ctx, journalKey(account)).Bytes()
	if err == nil {
		var entries []model.JournalEntry
		if json.Unmarshal(data, &entries) == nil {
			return entries, nil
		}
	}

	// Cache miss: read from primary.
	entries, err := s.primary.JournalByAccount(ctx, account)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(entries); err == nil {
		s.rdb.Set(ctx, journalKey(account), data, s.ttl)
	}
	return entries, nil
}

func (s *CachedStore) LatestSnapshot(ctx context.Context) (*model.EngineSnapshot, error) {
	data, err := s.rdb.Get(ctx, latestSnapshotKey).Bytes()
	if err == nil {
		var snap model.EngineSnapshot
		if json.Unmarshal(data, &snap) == nil {
			return &snap, nil
		}
	}

	snap, err := s.primary.LatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		s.cacheSnapshot(ctx, snap)
	}
	return snap, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) Journal(ctx context.Context) ([]model.JournalEntry, error) {
	return s.primary.Journal(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cacheSnapshot(ctx context.Context, snap *model.EngineSnapshot) {
	if data, err := json.Marshal(snap); err == nil {
		s.rdb.Set(ctx, latestSnapshotKey, data, s.ttl)
	}
}

const latestSnapshotKey = "snapshot:latest"

func journalKey(account model.Account) string {
	return fmt.Sprintf("journal:%s", account)
}
