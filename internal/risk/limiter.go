// Package risk enforces per-account stake limits on primary bets.
//
// A bettor accumulating outcome tokens across repeated buys carries the
// full stake until resolution. This package caps both the single-bet
// size and the aggregate open stake (green plus red exposure) so one
// account cannot dominate the prize pool.
package risk

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrBetTooLarge is returned when a single bet exceeds the per-bet
	// maximum.
	ErrBetTooLarge = errors.New("risk: single bet exceeds per-bet limit")

	// ErrOpenStakeExceeded is returned when a bet would push the
	// account's aggregate open stake beyond the maximum.
	ErrOpenStakeExceeded = errors.New("risk: open stake limit exceeded")
)

// StakeLimiter enforces bet sizing limits. A zero limit disables that
// check, so the zero value is an unlimited limiter.
type StakeLimiter struct {
	// MaxPerBet is the maximum stablecoin size of a single bet.
	MaxPerBet decimal.Decimal

	// MaxOpenStake is the maximum aggregate stablecoin an account may
	// have staked across both outcome tokens at once.
	MaxOpenStake decimal.Decimal
}

// NewStakeLimiter creates a limiter with the given per-bet and open
// stake limits.
func NewStakeLimiter(maxPerBet, maxOpenStake decimal.Decimal) *StakeLimiter {
	return &StakeLimiter{
		MaxPerBet:    maxPerBet,
		MaxOpenStake: maxOpenStake,
	}
}

// CheckBet validates whether a bet of amount respects the limits given
// the account's current open stake. Returns nil if the bet is allowed.
func (l *StakeLimiter) CheckBet(amount, openStake decimal.Decimal) error {
	if l.MaxPerBet.IsPositive() && amount.GreaterThan(l.MaxPerBet) {
		return ErrBetTooLarge
	}
	if l.MaxOpenStake.IsPositive() && openStake.Add(amount).GreaterThan(l.MaxOpenStake) {
		return ErrOpenStakeExceeded
	}
	return nil
}
