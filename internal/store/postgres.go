package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/raceline/market-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision;
// nested snapshot state is stored as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) AppendJournal(ctx context.Context, e *model.JournalEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO journal_entries (id, account, kind, asset_in, asset_out, amount_in, amount_out, fee, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9)`,
		e.ID, string(e.Account), e.Kind, string(e.AssetIn), string(e.AssetOut),
		e.AmountIn.String(), e.AmountOut.String(), e.Fee.String(),
		e.Timestamp,
	)
	return err
}

func (s *PostgresStore) JournalByAccount(ctx context.Context, account model.Account) ([]model.JournalEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account, kind, asset_in, asset_out,
		        amount_in::TEXT, amount_out::TEXT, fee::TEXT, timestamp
		 FROM journal_entries WHERE account = $1 ORDER BY timestamp`, string(account))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJournalEntries(rows)
}

func (s *PostgresStore) Journal(ctx context.Context) ([]model.JournalEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account, kind, asset_in, asset_out,
		        amount_in::TEXT, amount_out::TEXT, fee::TEXT, timestamp
		 FROM journal_entries ORDER BY timestamp`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJournalEntries(rows)
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap *model.EngineSnapshot) error {
	marketJSON, err := json.Marshal(snap.Market)
	if err != nil {
		return fmt.Errorf("marshal market snapshot: %w", err)
	}
	poolJSON, err := json.Marshal(snap.Pool)
	if err != nil {
		return fmt.Errorf("marshal pool snapshot: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO engine_snapshots (id, sequence, market, pool, taken_at)
		 VALUES ($1, $2, $3::JSONB, $4::JSONB, $5)`,
		snap.ID, snap.Sequence, marketJSON, poolJSON, snap.TakenAt,
	)
	return err
}

func (s *PostgresStore) LatestSnapshot(ctx context.Context) (*model.EngineSnapshot, error) {
	var snap model.EngineSnapshot
	var marketJSON, poolJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, sequence, market, pool, taken_at
		 FROM engine_snapshots ORDER BY sequence DESC LIMIT 1`).
		Scan(&snap.ID, &snap.Sequence, &marketJSON, &poolJSON, &snap.TakenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}

	if err := json.Unmarshal(marketJSON, &snap.Market); err != nil {
		return nil, fmt.Errorf("unmarshal market snapshot: %w", err)
	}
	if err := json.Unmarshal(poolJSON, &snap.Pool); err != nil {
		return nil, fmt.Errorf("unmarshal pool snapshot: %w", err)
	}
	return &snap, nil
}

// scanJournalEntries reads pgx rows into JournalEntry slices.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanJournalEntries(rows pgxRows) ([]model.JournalEntry, error) {
	var entries []model.JournalEntry
	for rows.Next() {
		var e model.JournalEntry
		var account, assetIn, assetOut string
		var amountInS, amountOutS, feeS string

		if err := rows.Scan(&e.ID, &account, &e.Kind, &assetIn, &assetOut,
			&amountInS, &amountOutS, &feeS, &e.Timestamp); err != nil {
			return nil, err
		}

		e.Account = model.Account(account)
		e.AssetIn = model.Asset(assetIn)
		e.AssetOut = model.Asset(assetOut)
		e.AmountIn, _ = decimal.NewFromString(amountInS)
		e.AmountOut, _ = decimal.NewFromString(amountOutS)
		e.Fee, _ = decimal.NewFromString(feeS)

		entries = append(entries, e)
	}
	return entries, rows.Err()
}
