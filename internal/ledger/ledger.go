// Package ledger tracks non-negative balances of the three engine
// assets per account, with per-asset supply totals maintained through
// explicit mint and burn.
//
// The ledger is the single shared mutable resource of the engine. Its
// primitives validate before mutating, so a failed call leaves no
// partial state. Multi-step invariants (for example the pool's
// reserve-equals-balance rule) are the callers' responsibility and
// rely on the engine's single-writer serialization of mutations.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/raceline/market-engine/internal/fixedpoint"
	"github.com/raceline/market-engine/internal/model"
)

var (
	// ErrInvalidAmount is returned for zero, negative, or fractional
	// base-unit amounts.
	ErrInvalidAmount = errors.New("ledger: amount must be a positive integral number of base units")

	// ErrInsufficientBalance is returned when a debit exceeds the
	// account's balance.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")

	// ErrUnknownAsset is returned when an operation references an asset
	// the ledger does not track.
	ErrUnknownAsset = errors.New("ledger: unknown asset")
)

// Ledger holds (asset, account) → balance with per-asset mint/burn
// totals. Safe for concurrent reads; mutations are expected to be
// serialized by the owning engine.
type Ledger struct {
	mu       sync.RWMutex
	balances map[model.Asset]map[model.Account]decimal.Decimal
	supply   map[model.Asset]decimal.Decimal
}

// New creates an empty ledger tracking the three engine assets.
func New() *Ledger {
	l := &Ledger{
		balances: make(map[model.Asset]map[model.Account]decimal.Decimal, len(model.Assets)),
		supply:   make(map[model.Asset]decimal.Decimal, len(model.Assets)),
	}
	for _, a := range model.Assets {
		l.balances[a] = make(map[model.Account]decimal.Decimal)
		l.supply[a] = decimal.Zero
	}
	return l
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !fixedpoint.IsIntegral(amount) {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return nil
}

func validateAsset(asset model.Asset) error {
	if !asset.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAsset, asset)
	}
	return nil
}

// Balance returns the account's balance of asset, zero for unknown
// accounts. Unknown assets report zero as well; mutating primitives are
// the ones that reject them.
func (l *Ledger) Balance(asset model.Asset, account model.Account) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	accounts, ok := l.balances[asset]
	if !ok {
		return decimal.Zero
	}
	return accounts[account]
}

// Supply returns the net minted supply of asset (mints minus burns).
func (l *Ledger) Supply(asset model.Asset) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply[asset]
}

// Mint creates amount new units of asset in account, increasing supply.
func (l *Ledger) Mint(asset model.Asset, account model.Account, amount decimal.Decimal) error {
	if err := validateAsset(asset); err != nil {
		return err
	}
	if err := validateAmount(amount); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[asset][account] = l.balances[asset][account].Add(amount)
	l.supply[asset] = l.supply[asset].Add(amount)
	return nil
}

// Burn destroys amount units of asset held by account, decreasing
// supply. Fails with ErrInsufficientBalance if the account holds less.
func (l *Ledger) Burn(asset model.Asset, account model.Account, amount decimal.Decimal) error {
	if err := validateAsset(asset); err != nil {
		return err
	}
	if err := validateAmount(amount); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.balances[asset][account]
	if bal.LessThan(amount) {
		return fmt.Errorf("%w: %s has %s %s, burn wants %s",
			ErrInsufficientBalance, account, bal, asset, amount)
	}
	l.balances[asset][account] = bal.Sub(amount)
	l.supply[asset] = l.supply[asset].Sub(amount)
	return nil
}

// Transfer moves amount units of asset between accounts. Supply is
// unchanged. Fails with ErrInsufficientBalance if from holds less.
func (l *Ledger) Transfer(asset model.Asset, from, to model.Account, amount decimal.Decimal) error {
	if err := validateAsset(asset); err != nil {
		return err
	}
	if err := validateAmount(amount); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.balances[asset][from]
	if bal.LessThan(amount) {
		return fmt.Errorf("%w: %s has %s %s, transfer wants %s",
			ErrInsufficientBalance, from, bal, asset, amount)
	}
	l.balances[asset][from] = bal.Sub(amount)
	l.balances[asset][to] = l.balances[asset][to].Add(amount)
	return nil
}

// Balances returns every non-zero balance held by account.
func (l *Ledger) Balances(account model.Account) map[model.Asset]decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[model.Asset]decimal.Decimal, len(model.Assets))
	for _, a := range model.Assets {
		if bal, ok := l.balances[a][account]; ok && !bal.IsZero() {
			out[a] = bal
		}
	}
	return out
}
