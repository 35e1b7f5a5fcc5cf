// Package market implements the binary prediction market state machine:
// an Open phase where stablecoin buys mint outcome tokens into a prize
// pool, and a terminal Resolved phase where holders of the winning
// token redeem a pro-rata share of that pool.
//
// The market never consults wall-clock time directly; a clock function
// is injected so deadline behavior is deterministic under test. Caller
// identity is explicit on every mutating operation.
package market

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/raceline/market-engine/internal/fixedpoint"
	"github.com/raceline/market-engine/internal/ledger"
	"github.com/raceline/market-engine/internal/model"
	"github.com/raceline/market-engine/internal/pool"
)

var (
	// ErrUnauthorized is returned when the caller lacks the role an
	// operation requires (owner for SetOracle, oracle for Resolve).
	ErrUnauthorized = errors.New("market: caller not authorized")

	// ErrMarketClosed is returned for primary buys at or after the
	// market's end time.
	ErrMarketClosed = errors.New("market: betting window is closed")

	// ErrTooEarly is returned when resolution is attempted before the
	// end time.
	ErrTooEarly = errors.New("market: cannot resolve before end time")

	// ErrInvalidOutcome is returned when resolving to anything other
	// than a green or red win.
	ErrInvalidOutcome = errors.New("market: invalid outcome")

	// ErrAlreadyResolved is returned when resolving a resolved market.
	ErrAlreadyResolved = errors.New("market: already resolved")

	// ErrNotResolved is returned for payout operations on an open market.
	ErrNotResolved = errors.New("market: not resolved yet")

	// ErrNotWinningToken is returned when redeeming the losing token.
	ErrNotWinningToken = errors.New("market: token did not win")
)

// Config carries the immutable parameters of a market.
type Config struct {
	MarketID string
	Owner    model.Account
	Oracle   model.Account
	Account  model.Account // ledger account holding the prize pool
	EndTime  time.Time
	Now      func() time.Time
}

// Market is the prediction market over the green/red outcome pair.
// Like the pool, mutation ordering is the owning engine's concern; the
// internal lock keeps snapshot reads consistent.
type Market struct {
	mu     sync.RWMutex
	ledger *ledger.Ledger
	pool   *pool.Pool

	marketID string
	owner    model.Account
	oracle   model.Account
	account  model.Account
	endTime  time.Time
	now      func() time.Time

	resolved  bool
	outcome   model.Outcome
	collected decimal.Decimal

	// issued counts outcome tokens minted by this market's primary buys,
	// net of redemption burns. Ledger-wide supply cannot serve here:
	// faucet mints and pool seeding would inflate the payout denominator.
	issued map[model.Asset]decimal.Decimal

	// winningSupply is frozen at resolution so sequential redemptions
	// share one denominator and can never over-pay the prize pool.
	winningSupply decimal.Decimal
}

// New creates an open market bound to the given ledger and pool.
func New(l *ledger.Ledger, p *pool.Pool, cfg Config) *Market {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Market{
		ledger:        l,
		pool:          p,
		marketID:      cfg.MarketID,
		owner:         cfg.Owner,
		oracle:        cfg.Oracle,
		account:       cfg.Account,
		endTime:       cfg.EndTime,
		now:           now,
		outcome:       model.OutcomePending,
		collected:     decimal.Zero,
		winningSupply: decimal.Zero,
		issued: map[model.Asset]decimal.Decimal{
			model.GreenToken: decimal.Zero,
			model.RedToken:   decimal.Zero,
		},
	}
}

// Account returns the ledger account holding the prize pool.
func (m *Market) Account() model.Account { return m.account }

// EndTime returns the betting deadline.
func (m *Market) EndTime() time.Time { return m.endTime }

// SetOracle replaces the resolution oracle. Owner-only, and only while
// the market is open.
func (m *Market) SetOracle(caller, oracle model.Account) error {
	if caller != m.owner {
		return fmt.Errorf("%w: %s is not the owner", ErrUnauthorized, caller)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.resolved {
		return ErrAlreadyResolved
	}
	m.oracle = oracle
	return nil
}

// BuyTokens is the primary market: the buyer pays amount stablecoin
// into the prize pool and receives the same amount of the chosen
// outcome token, freshly minted. Allowed strictly before the end time.
func (m *Market) BuyTokens(caller model.Account, token model.Asset, amount decimal.Decimal) error {
	if !token.IsOutcomeToken() {
		return fmt.Errorf("%w: %s is not an outcome token", ledger.ErrUnknownAsset, token)
	}
	if !amount.IsPositive() || !fixedpoint.IsIntegral(amount) {
		return fmt.Errorf("%w: %s", ledger.ErrInvalidAmount, amount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.resolved {
		return ErrAlreadyResolved
	}
	if !m.now().Before(m.endTime) {
		return fmt.Errorf("%w: ended %s", ErrMarketClosed, m.endTime.Format(time.RFC3339))
	}

	if err := m.ledger.Transfer(model.Stablecoin, caller, m.account, amount); err != nil {
		return err
	}
	// Transfer succeeded; the mint cannot fail on a validated amount.
	if err := m.ledger.Mint(token, caller, amount); err != nil {
		return err
	}
	m.collected = m.collected.Add(amount)
	m.issued[token] = m.issued[token].Add(amount)
	return nil
}

// SellTokens exits a position early through the liquidity pool at the
// constant-product price. Sells stay open after the betting deadline so
// losers can salvage value until resolution drains interest.
func (m *Market) SellTokens(caller model.Account, token model.Asset, amount decimal.Decimal) (pool.SwapResult, error) {
	return m.pool.SellToStablecoin(caller, token, amount)
}

// Resolve fixes the outcome. Oracle-only, at or after the end time,
// exactly once. The winning token's supply is snapshotted here as the
// permanent payout denominator.
func (m *Market) Resolve(caller model.Account, outcome model.Outcome) error {
	if caller != m.oracle {
		return fmt.Errorf("%w: %s is not the oracle", ErrUnauthorized, caller)
	}
	if outcome != model.OutcomeGreenWins && outcome != model.OutcomeRedWins {
		return fmt.Errorf("%w: %d", ErrInvalidOutcome, outcome)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.resolved {
		return ErrAlreadyResolved
	}
	if m.now().Before(m.endTime) {
		return fmt.Errorf("%w: ends %s", ErrTooEarly, m.endTime.Format(time.RFC3339))
	}

	m.resolved = true
	m.outcome = outcome
	m.winningSupply = m.issued[outcome.WinningToken()]
	return nil
}

// CalculatePayout prices a redemption of tokenAmount units of token:
// tokenAmount * collected / winningSupply, floor division. Read-only,
// and deliberately lenient: an unresolved market, a losing token, and a
// zero winning supply all quote zero rather than erroring.
func (m *Market) CalculatePayout(token model.Asset, tokenAmount decimal.Decimal) (decimal.Decimal, error) {
	if tokenAmount.IsNegative() || !fixedpoint.IsIntegral(tokenAmount) {
		return decimal.Zero, fmt.Errorf("%w: %s", ledger.ErrInvalidAmount, tokenAmount)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.payoutLocked(token, tokenAmount)
}

func (m *Market) payoutLocked(token model.Asset, tokenAmount decimal.Decimal) (decimal.Decimal, error) {
	if !m.resolved || token != m.outcome.WinningToken() {
		return decimal.Zero, nil
	}
	if m.winningSupply.IsZero() || tokenAmount.IsZero() {
		return decimal.Zero, nil
	}
	return fixedpoint.MulDivFloor(tokenAmount, m.collected, m.winningSupply)
}

// RedeemTokens burns the caller's entire balance of the winning token
// and pays the pro-rata share of the prize pool in stablecoin. Returns
// the amount burned and the payout.
func (m *Market) RedeemTokens(caller model.Account, token model.Asset) (burned, payout decimal.Decimal, err error) {
	if !token.IsOutcomeToken() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %s is not an outcome token", ledger.ErrUnknownAsset, token)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.resolved {
		return decimal.Zero, decimal.Zero, ErrNotResolved
	}
	if token != m.outcome.WinningToken() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %s lost, %s won", ErrNotWinningToken, token, m.outcome.WinningToken())
	}

	burned = m.ledger.Balance(token, caller)
	if !burned.IsPositive() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %s holds no %s to redeem",
			ledger.ErrInsufficientBalance, caller, token)
	}

	payout, err = m.payoutLocked(token, burned)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	// Burn first; no prize pool money moves until it has succeeded.
	if err := m.ledger.Burn(token, caller, burned); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	m.issued[token] = m.issued[token].Sub(burned)
	if payout.IsPositive() {
		if err := m.ledger.Transfer(model.Stablecoin, m.account, caller, payout); err != nil {
			return decimal.Zero, decimal.Zero, err
		}
	}
	return burned, payout, nil
}

// Collected returns the stablecoin prize pool accumulated from primary
// buys. Trading liquidity in the pool is a separate balance and is
// never part of this figure.
func (m *Market) Collected() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collected
}

// Resolved reports the terminal state and its outcome.
func (m *Market) Resolved() (bool, model.Outcome) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resolved, m.outcome
}

// TimeRemaining returns the duration until the betting deadline, zero
// once passed.
func (m *Market) TimeRemaining() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if d := m.endTime.Sub(m.now()); d > 0 {
		return d
	}
	return 0
}

// IsActive reports whether bets are still accepted.
func (m *Market) IsActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.resolved && m.now().Before(m.endTime)
}

// Info returns a consistent snapshot of the market.
func (m *Market) Info() model.MarketInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	remaining := m.endTime.Sub(m.now())
	if remaining < 0 {
		remaining = 0
	}
	return model.MarketInfo{
		MarketID:      m.marketID,
		Resolved:      m.resolved,
		Outcome:       m.outcome,
		OutcomeLabel:  m.outcome.String(),
		GreenSupply:   m.issued[model.GreenToken],
		RedSupply:     m.issued[model.RedToken],
		Collected:     m.collected,
		EndTime:       m.endTime,
		TimeRemaining: remaining,
		Active:        !m.resolved && m.now().Before(m.endTime),
	}
}
