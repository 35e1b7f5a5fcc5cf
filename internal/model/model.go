// Package model defines the core domain types shared across the market engine.
// All monetary values use shopspring/decimal — never float64 for money.
// Amounts are base-unit integers scaled by 10^18.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Asset identifies one of the three fungible assets the engine tracks.
type Asset string

const (
	GreenToken Asset = "GREEN"
	RedToken   Asset = "RED"
	Stablecoin Asset = "STABLE"
)

// Assets lists every asset the ledger accepts, in display order.
var Assets = []Asset{GreenToken, RedToken, Stablecoin}

// Valid reports whether a is one of the three known assets.
func (a Asset) Valid() bool {
	return a == GreenToken || a == RedToken || a == Stablecoin
}

// IsOutcomeToken reports whether a is one of the two outcome tokens.
func (a Asset) IsOutcomeToken() bool {
	return a == GreenToken || a == RedToken
}

// Account is an opaque holder identity. The engine attaches no meaning
// to it beyond balance ownership; authentication is a boundary concern.
type Account string

// Outcome is the resolution result of the market.
type Outcome uint8

const (
	OutcomePending Outcome = iota
	OutcomeGreenWins
	OutcomeRedWins
)

func (o Outcome) String() string {
	switch o {
	case OutcomeGreenWins:
		return "GREEN_WINS"
	case OutcomeRedWins:
		return "RED_WINS"
	default:
		return "PENDING"
	}
}

// WinningToken returns the outcome token paid out under o, or "" while
// the market is pending.
func (o Outcome) WinningToken() Asset {
	switch o {
	case OutcomeGreenWins:
		return GreenToken
	case OutcomeRedWins:
		return RedToken
	default:
		return ""
	}
}

// PoolInfo is a consistent snapshot of the liquidity pool.
type PoolInfo struct {
	ReserveGreen  decimal.Decimal `json:"reserve_green"`
	ReserveRed    decimal.Decimal `json:"reserve_red"`
	ReserveStable decimal.Decimal `json:"reserve_stable"`
	TotalShares   decimal.Decimal `json:"total_shares"`
	FeeBps        int64           `json:"fee_bps"`
	Providers     []Account       `json:"providers"`
}

// MarketInfo is a consistent snapshot of the market state machine.
type MarketInfo struct {
	MarketID      string          `json:"market_id"`
	Resolved      bool            `json:"resolved"`
	Outcome       Outcome         `json:"outcome"`
	OutcomeLabel  string          `json:"outcome_label"`
	GreenSupply   decimal.Decimal `json:"green_supply"`
	RedSupply     decimal.Decimal `json:"red_supply"`
	Collected     decimal.Decimal `json:"collected"`
	EndTime       time.Time       `json:"end_time"`
	TimeRemaining time.Duration   `json:"time_remaining"`
	Active        bool            `json:"active"`
}

// Journal entry kinds.
const (
	KindBet             = "BET"
	KindSell            = "SELL"
	KindSwap            = "SWAP"
	KindPoolBuy         = "POOL_BUY"
	KindPoolSell        = "POOL_SELL"
	KindFund            = "FUND"
	KindAddLiquidity    = "ADD_LIQUIDITY"
	KindRemoveLiquidity = "REMOVE_LIQUIDITY"
	KindResolve         = "RESOLVE"
	KindRedeem          = "REDEEM"
)

// JournalEntry is an immutable record of a successful mutation.
// Once appended, these are never modified or deleted.
type JournalEntry struct {
	ID        string          `json:"id" db:"id"`
	Account   Account         `json:"account" db:"account"`
	Kind      string          `json:"kind" db:"kind"`
	AssetIn   Asset           `json:"asset_in,omitempty" db:"asset_in"`
	AssetOut  Asset           `json:"asset_out,omitempty" db:"asset_out"`
	AmountIn  decimal.Decimal `json:"amount_in" db:"amount_in"`
	AmountOut decimal.Decimal `json:"amount_out" db:"amount_out"`
	Fee       decimal.Decimal `json:"fee" db:"fee"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// EngineSnapshot captures market and pool state after a mutation, for
// observability and recovery tooling.
type EngineSnapshot struct {
	ID       string     `json:"id" db:"id"`
	Sequence int64      `json:"sequence" db:"sequence"`
	Market   MarketInfo `json:"market"`
	Pool     PoolInfo   `json:"pool"`
	TakenAt  time.Time  `json:"taken_at" db:"taken_at"`
}
