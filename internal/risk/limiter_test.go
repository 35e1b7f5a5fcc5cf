package risk

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestCheckBet_WithinLimits(t *testing.T) {
	limiter := NewStakeLimiter(d(1000), d(5000))

	if err := limiter.CheckBet(d(100), decimal.Zero); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckBet_PerBetExceeded(t *testing.T) {
	limiter := NewStakeLimiter(d(1000), d(5000))

	err := limiter.CheckBet(d(1001), decimal.Zero)
	if err != ErrBetTooLarge {
		t.Errorf("expected ErrBetTooLarge, got %v", err)
	}
}

func TestCheckBet_PerBetBoundary(t *testing.T) {
	limiter := NewStakeLimiter(d(1000), d(5000))

	if err := limiter.CheckBet(d(1000), decimal.Zero); err != nil {
		t.Errorf("bet exactly at the limit should pass, got %v", err)
	}
}

func TestCheckBet_OpenStakeExceeded(t *testing.T) {
	limiter := NewStakeLimiter(d(1000), d(5000))

	// 4500 already staked + 600 new = 5100 > 5000.
	err := limiter.CheckBet(d(600), d(4500))
	if err != ErrOpenStakeExceeded {
		t.Errorf("expected ErrOpenStakeExceeded, got %v", err)
	}
}

func TestCheckBet_OpenStakeBoundary(t *testing.T) {
	limiter := NewStakeLimiter(d(1000), d(5000))

	// 4000 + 1000 = 5000, exactly at the limit.
	if err := limiter.CheckBet(d(1000), d(4000)); err != nil {
		t.Errorf("aggregate exactly at the limit should pass, got %v", err)
	}
}

func TestCheckBet_ZeroLimitsDisableChecks(t *testing.T) {
	limiter := &StakeLimiter{}

	if err := limiter.CheckBet(d(1000000), d(1000000)); err != nil {
		t.Errorf("zero-value limiter should allow everything, got %v", err)
	}
}
