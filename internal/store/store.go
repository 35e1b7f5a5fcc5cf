// Package store defines the persistence interface for the market engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
//
// The ledger, pool, and market are authoritative in memory; the store
// records the trade journal and periodic engine snapshots for audit and
// recovery tooling.
package store

import (
	"context"

	"github.com/raceline/market-engine/internal/model"
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Immutable trade journal ---

	// AppendJournal appends an immutable record of a successful mutation.
	AppendJournal(ctx context.Context, entry *model.JournalEntry) error

	// JournalByAccount returns every journal entry for an account, in
	// append order.
	JournalByAccount(ctx context.Context, account model.Account) ([]model.JournalEntry, error)

	// Journal returns the full journal in append order.
	Journal(ctx context.Context) ([]model.JournalEntry, error)

	// --- Engine snapshots ---

	// SaveSnapshot persists a post-mutation snapshot of market and pool
	// state.
	SaveSnapshot(ctx context.Context, snap *model.EngineSnapshot) error

	// LatestSnapshot returns the highest-sequence snapshot, or nil when
	// none has been taken.
	LatestSnapshot(ctx context.Context) (*model.EngineSnapshot, error)
}
