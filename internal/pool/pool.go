// Package pool implements the three-reserve constant-product liquidity
// pool backing the secondary market for outcome tokens.
//
// Pricing is pairwise: each trade involves exactly two reserves (the
// input asset and the output asset) and holds their product invariant
// before fee deduction; the third reserve is untouched. A 30 basis
// point fee is taken from every swap's input and folded back into the
// input reserve, so the product of the two involved reserves never
// decreases across a swap.
//
// All monetary values use shopspring/decimal — never float64 for money.
// The pool owns a ledger account; its reserve counters always equal
// that account's actual balances.
package pool

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/raceline/market-engine/internal/fixedpoint"
	"github.com/raceline/market-engine/internal/ledger"
	"github.com/raceline/market-engine/internal/model"
)

// DefaultFeeBps is the swap fee in basis points, fixed for the life of
// the pool.
const DefaultFeeBps = 30

var (
	// ErrUnauthorized is returned when a caller other than the owner
	// invokes an owner-only operation.
	ErrUnauthorized = errors.New("pool: caller is not the pool owner")

	// ErrAlreadyRegistered is returned when registering a provider twice.
	ErrAlreadyRegistered = errors.New("pool: provider already registered")

	// ErrNotRegisteredProvider is returned when an unregistered account
	// attempts a liquidity operation.
	ErrNotRegisteredProvider = errors.New("pool: account is not a registered provider")

	// ErrPoolEmpty is returned when a proportional liquidity add hits an
	// unfunded pool. The owner must Fund first.
	ErrPoolEmpty = errors.New("pool: reserves are empty, fund the pool first")

	// ErrInsufficientReserve is returned when a swap cannot be served
	// from the output reserve.
	ErrInsufficientReserve = errors.New("pool: insufficient reserve for swap")
)

// Pool is the three-asset constant-product market maker with LP share
// accounting. Mutations are expected to be serialized by the owning
// engine; the internal lock only guards snapshot reads.
type Pool struct {
	mu      sync.RWMutex
	ledger  *ledger.Ledger
	owner   model.Account
	account model.Account
	feeBps  int64

	reserves    map[model.Asset]decimal.Decimal
	totalShares decimal.Decimal
	shares      map[model.Account]decimal.Decimal
	providers   map[model.Account]bool
}

// New creates an empty pool owned by owner, holding its reserves in the
// given ledger account.
func New(l *ledger.Ledger, owner, account model.Account) *Pool {
	reserves := make(map[model.Asset]decimal.Decimal, len(model.Assets))
	for _, a := range model.Assets {
		reserves[a] = decimal.Zero
	}
	return &Pool{
		ledger:      l,
		owner:       owner,
		account:     account,
		feeBps:      DefaultFeeBps,
		reserves:    reserves,
		totalShares: decimal.Zero,
		shares:      make(map[model.Account]decimal.Decimal),
		providers:   make(map[model.Account]bool),
	}
}

// Account returns the ledger account holding the pool's reserves.
func (p *Pool) Account() model.Account { return p.account }

// FeeBps returns the swap fee in basis points.
func (p *Pool) FeeBps() int64 { return p.feeBps }

// SwapResult reports the outcome of a successful swap, including the
// post-trade reserves of the two assets involved.
type SwapResult struct {
	AssetIn       model.Asset     `json:"asset_in"`
	AssetOut      model.Asset     `json:"asset_out"`
	AmountIn      decimal.Decimal `json:"amount_in"`
	AmountOut     decimal.Decimal `json:"amount_out"`
	Fee           decimal.Decimal `json:"fee"`
	NewReserveIn  decimal.Decimal `json:"new_reserve_in"`
	NewReserveOut decimal.Decimal `json:"new_reserve_out"`
}

// LiquidityResult reports the outcome of a fund/add/remove operation.
type LiquidityResult struct {
	Shares       decimal.Decimal `json:"shares"` // minted or burned
	AmountGreen  decimal.Decimal `json:"amount_green"`
	AmountRed    decimal.Decimal `json:"amount_red"`
	AmountStable decimal.Decimal `json:"amount_stable"`
	TotalShares  decimal.Decimal `json:"total_shares"`
}

func validatePositive(amount decimal.Decimal) error {
	if !amount.IsPositive() || !fixedpoint.IsIntegral(amount) {
		return fmt.Errorf("%w: %s", ledger.ErrInvalidAmount, amount)
	}
	return nil
}

// quoteOut computes the pairwise constant-product output for amountIn
// after fee: out = Rout - Rin*Rout/(Rin + amountInAfterFee), with floor
// division throughout.
func (p *Pool) quoteOut(assetIn, assetOut model.Asset, amountIn decimal.Decimal) (decimal.Decimal, error) {
	rin, rout := p.reserves[assetIn], p.reserves[assetOut]
	if !rin.IsPositive() || !rout.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s/%s reserves %s/%s",
			ErrInsufficientReserve, assetIn, assetOut, rin, rout)
	}

	afterFee := fixedpoint.ApplyFeeBps(amountIn, p.feeBps)
	kept, err := fixedpoint.MulDivFloor(rin, rout, rin.Add(afterFee))
	if err != nil {
		return decimal.Zero, err
	}
	return rout.Sub(kept), nil
}

// Quote prices a swap of amountIn units of assetIn for assetOut without
// mutating state. A zero amountIn quotes zero.
func (p *Pool) Quote(assetIn, assetOut model.Asset, amountIn decimal.Decimal) (decimal.Decimal, error) {
	if !assetIn.Valid() || !assetOut.Valid() || assetIn == assetOut {
		return decimal.Zero, fmt.Errorf("%w: %s -> %s", ledger.ErrUnknownAsset, assetIn, assetOut)
	}
	if amountIn.IsZero() {
		return decimal.Zero, nil
	}
	if err := validatePositive(amountIn); err != nil {
		return decimal.Zero, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.quoteOut(assetIn, assetOut, amountIn)
}

// GetPrice quotes selling amountIn of an outcome token for stablecoin,
// the primary price signal the UI displays.
func (p *Pool) GetPrice(tokenIn model.Asset, amountIn decimal.Decimal) (decimal.Decimal, error) {
	if !tokenIn.IsOutcomeToken() {
		return decimal.Zero, fmt.Errorf("%w: %s is not an outcome token", ledger.ErrUnknownAsset, tokenIn)
	}
	return p.Quote(tokenIn, model.Stablecoin, amountIn)
}

// executeSwap performs the validated reserve/ledger updates for a swap.
// Preconditions are fully checked before the first mutation.
func (p *Pool) executeSwap(caller model.Account, assetIn, assetOut model.Asset, amountIn decimal.Decimal) (SwapResult, error) {
	if err := validatePositive(amountIn); err != nil {
		return SwapResult{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	amountOut, err := p.quoteOut(assetIn, assetOut, amountIn)
	if err != nil {
		return SwapResult{}, err
	}
	if !amountOut.IsPositive() {
		return SwapResult{}, fmt.Errorf("%w: input too small for any output", ErrInsufficientReserve)
	}
	if amountOut.GreaterThanOrEqual(p.reserves[assetOut]) {
		return SwapResult{}, fmt.Errorf("%w: swap would drain %s reserve", ErrInsufficientReserve, assetOut)
	}
	if p.ledger.Balance(assetIn, caller).LessThan(amountIn) {
		return SwapResult{}, fmt.Errorf("%w: %s lacks %s %s",
			ledger.ErrInsufficientBalance, caller, amountIn, assetIn)
	}

	// All checks passed; the two transfers below cannot fail.
	if err := p.ledger.Transfer(assetIn, caller, p.account, amountIn); err != nil {
		return SwapResult{}, err
	}
	if err := p.ledger.Transfer(assetOut, p.account, caller, amountOut); err != nil {
		return SwapResult{}, err
	}

	p.reserves[assetIn] = p.reserves[assetIn].Add(amountIn)
	p.reserves[assetOut] = p.reserves[assetOut].Sub(amountOut)

	afterFee := fixedpoint.ApplyFeeBps(amountIn, p.feeBps)
	return SwapResult{
		AssetIn:       assetIn,
		AssetOut:      assetOut,
		AmountIn:      amountIn,
		AmountOut:     amountOut,
		Fee:           amountIn.Sub(afterFee),
		NewReserveIn:  p.reserves[assetIn],
		NewReserveOut: p.reserves[assetOut],
	}, nil
}

// Swap trades amountIn of one outcome token for the other outcome token.
func (p *Pool) Swap(caller model.Account, tokenIn model.Asset, amountIn decimal.Decimal) (SwapResult, error) {
	if !tokenIn.IsOutcomeToken() {
		return SwapResult{}, fmt.Errorf("%w: %s is not an outcome token", ledger.ErrUnknownAsset, tokenIn)
	}
	tokenOut := model.RedToken
	if tokenIn == model.RedToken {
		tokenOut = model.GreenToken
	}
	return p.executeSwap(caller, tokenIn, tokenOut, amountIn)
}

// BuyWithStablecoin trades stableIn stablecoin for tokenOut.
func (p *Pool) BuyWithStablecoin(caller model.Account, tokenOut model.Asset, stableIn decimal.Decimal) (SwapResult, error) {
	if !tokenOut.IsOutcomeToken() {
		return SwapResult{}, fmt.Errorf("%w: %s is not an outcome token", ledger.ErrUnknownAsset, tokenOut)
	}
	return p.executeSwap(caller, model.Stablecoin, tokenOut, stableIn)
}

// SellToStablecoin trades tokenAmount of tokenIn for stablecoin.
func (p *Pool) SellToStablecoin(caller model.Account, tokenIn model.Asset, tokenAmount decimal.Decimal) (SwapResult, error) {
	if !tokenIn.IsOutcomeToken() {
		return SwapResult{}, fmt.Errorf("%w: %s is not an outcome token", ledger.ErrUnknownAsset, tokenIn)
	}
	return p.executeSwap(caller, tokenIn, model.Stablecoin, tokenAmount)
}

// Fund moves all three amounts from the owner into the reserves,
// owner-only and repeatable. The first fund of an empty pool mints
// shares equal to the stablecoin contribution, establishing the share
// price; later funds mint proportional to the stablecoin reserve. The
// owner is registered as a provider implicitly so shares never land on
// an unregistered account.
func (p *Pool) Fund(caller model.Account, amtGreen, amtRed, amtStable decimal.Decimal) (LiquidityResult, error) {
	if caller != p.owner {
		return LiquidityResult{}, fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	for _, amt := range []decimal.Decimal{amtGreen, amtRed, amtStable} {
		if err := validatePositive(amt); err != nil {
			return LiquidityResult{}, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	contributions := map[model.Asset]decimal.Decimal{
		model.GreenToken: amtGreen,
		model.RedToken:   amtRed,
		model.Stablecoin: amtStable,
	}
	for asset, amt := range contributions {
		if p.ledger.Balance(asset, caller).LessThan(amt) {
			return LiquidityResult{}, fmt.Errorf("%w: %s lacks %s %s",
				ledger.ErrInsufficientBalance, caller, amt, asset)
		}
	}

	var minted decimal.Decimal
	if p.totalShares.IsZero() {
		minted = amtStable
	} else {
		var err error
		minted, err = fixedpoint.MulDivFloor(amtStable, p.totalShares, p.reserves[model.Stablecoin])
		if err != nil {
			return LiquidityResult{}, err
		}
	}

	for asset, amt := range contributions {
		if err := p.ledger.Transfer(asset, caller, p.account, amt); err != nil {
			return LiquidityResult{}, err
		}
		p.reserves[asset] = p.reserves[asset].Add(amt)
	}

	p.providers[caller] = true
	p.shares[caller] = p.shares[caller].Add(minted)
	p.totalShares = p.totalShares.Add(minted)

	return LiquidityResult{
		Shares:       minted,
		AmountGreen:  amtGreen,
		AmountRed:    amtRed,
		AmountStable: amtStable,
		TotalShares:  p.totalShares,
	}, nil
}

// RegisterProvider adds account to the provider registry. Registering
// twice fails with ErrAlreadyRegistered.
func (p *Pool) RegisterProvider(account model.Account) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.providers[account] {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, account)
	}
	p.providers[account] = true
	return nil
}

// AddLiquidity mints shares to a registered provider proportional to
// the smallest contribution ratio across the three reserves.
func (p *Pool) AddLiquidity(provider model.Account, amtGreen, amtRed, amtStable decimal.Decimal) (LiquidityResult, error) {
	for _, amt := range []decimal.Decimal{amtGreen, amtRed, amtStable} {
		if err := validatePositive(amt); err != nil {
			return LiquidityResult{}, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.providers[provider] {
		return LiquidityResult{}, fmt.Errorf("%w: %s", ErrNotRegisteredProvider, provider)
	}
	if p.totalShares.IsZero() {
		return LiquidityResult{}, ErrPoolEmpty
	}

	contributions := map[model.Asset]decimal.Decimal{
		model.GreenToken: amtGreen,
		model.RedToken:   amtRed,
		model.Stablecoin: amtStable,
	}
	for asset, amt := range contributions {
		if p.ledger.Balance(asset, provider).LessThan(amt) {
			return LiquidityResult{}, fmt.Errorf("%w: %s lacks %s %s",
				ledger.ErrInsufficientBalance, provider, amt, asset)
		}
	}

	// minted = min over assets of amt_i * totalShares / reserve_i.
	var minted decimal.Decimal
	first := true
	for asset, amt := range contributions {
		q, err := fixedpoint.MulDivFloor(amt, p.totalShares, p.reserves[asset])
		if err != nil {
			return LiquidityResult{}, err
		}
		if first || q.LessThan(minted) {
			minted = q
			first = false
		}
	}
	if !minted.IsPositive() {
		return LiquidityResult{}, fmt.Errorf("%w: contribution too small to mint shares", ledger.ErrInvalidAmount)
	}

	for asset, amt := range contributions {
		if err := p.ledger.Transfer(asset, provider, p.account, amt); err != nil {
			return LiquidityResult{}, err
		}
		p.reserves[asset] = p.reserves[asset].Add(amt)
	}

	p.shares[provider] = p.shares[provider].Add(minted)
	p.totalShares = p.totalShares.Add(minted)

	return LiquidityResult{
		Shares:       minted,
		AmountGreen:  amtGreen,
		AmountRed:    amtRed,
		AmountStable: amtStable,
		TotalShares:  p.totalShares,
	}, nil
}

// RemoveLiquidity burns shareAmount of the provider's shares and pays
// out each reserve pro-rata. The three ledger credits and the share
// burn happen only after every precondition is checked.
func (p *Pool) RemoveLiquidity(provider model.Account, shareAmount decimal.Decimal) (LiquidityResult, error) {
	if err := validatePositive(shareAmount); err != nil {
		return LiquidityResult{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	held := p.shares[provider]
	if held.LessThan(shareAmount) {
		return LiquidityResult{}, fmt.Errorf("%w: %s holds %s shares, remove wants %s",
			ledger.ErrInsufficientBalance, provider, held, shareAmount)
	}

	payouts := make(map[model.Asset]decimal.Decimal, len(model.Assets))
	for _, asset := range model.Assets {
		out, err := fixedpoint.MulDivFloor(shareAmount, p.reserves[asset], p.totalShares)
		if err != nil {
			return LiquidityResult{}, err
		}
		payouts[asset] = out
	}

	for asset, out := range payouts {
		if out.IsPositive() {
			if err := p.ledger.Transfer(asset, p.account, provider, out); err != nil {
				return LiquidityResult{}, err
			}
		}
		p.reserves[asset] = p.reserves[asset].Sub(out)
	}

	p.shares[provider] = held.Sub(shareAmount)
	p.totalShares = p.totalShares.Sub(shareAmount)

	return LiquidityResult{
		Shares:       shareAmount,
		AmountGreen:  payouts[model.GreenToken],
		AmountRed:    payouts[model.RedToken],
		AmountStable: payouts[model.Stablecoin],
		TotalShares:  p.totalShares,
	}, nil
}

// Reserves returns the green, red, and stablecoin reserves.
func (p *Pool) Reserves() (green, red, stable decimal.Decimal) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reserves[model.GreenToken], p.reserves[model.RedToken], p.reserves[model.Stablecoin]
}

// TotalShares returns the outstanding LP share supply.
func (p *Pool) TotalShares() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.totalShares
}

// SharesOf returns the provider's LP share balance.
func (p *Pool) SharesOf(account model.Account) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.shares[account]
}

// IsProvider reports whether account is registered.
func (p *Pool) IsProvider(account model.Account) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.providers[account]
}

// Info returns a consistent snapshot of the pool.
func (p *Pool) Info() model.PoolInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()

	providers := make([]model.Account, 0, len(p.providers))
	for acct := range p.providers {
		providers = append(providers, acct)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })

	return model.PoolInfo{
		ReserveGreen:  p.reserves[model.GreenToken],
		ReserveRed:    p.reserves[model.RedToken],
		ReserveStable: p.reserves[model.Stablecoin],
		TotalShares:   p.totalShares,
		FeeBps:        p.feeBps,
		Providers:     providers,
	}
}
