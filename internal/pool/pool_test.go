package pool

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/raceline/market-engine/internal/fixedpoint"
	"github.com/raceline/market-engine/internal/ledger"
	"github.com/raceline/market-engine/internal/model"
)

const (
	owner    = model.Account("owner")
	lp1      = model.Account("lp1")
	trader   = model.Account("trader")
	poolAcct = model.Account("pool")
)

func u(whole int64) decimal.Decimal { return fixedpoint.FromUnits(whole) }

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}

// newFundedPool builds a ledger and a pool pre-funded with
// 1000 green / 1000 red / 5000 stablecoin, the reference reserves.
func newFundedPool(t *testing.T) (*ledger.Ledger, *Pool) {
	t.Helper()
	l := ledger.New()
	p := New(l, owner, poolAcct)

	for _, a := range model.Assets {
		if err := l.Mint(a, owner, u(10000)); err != nil {
			t.Fatalf("mint %s: %v", a, err)
		}
	}
	if _, err := p.Fund(owner, u(1000), u(1000), u(5000)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	return l, p
}

// --- Funding ---

func TestFund_InitialSharePriceIsStableAmount(t *testing.T) {
	l := ledger.New()
	p := New(l, owner, poolAcct)
	for _, a := range model.Assets {
		l.Mint(a, owner, u(10000))
	}

	res, err := p.Fund(owner, u(1000), u(1000), u(5000))
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if !res.Shares.Equal(u(5000)) {
		t.Errorf("initial shares = %s, want 5000e18", res.Shares)
	}
	if !p.TotalShares().Equal(u(5000)) {
		t.Errorf("total shares = %s, want 5000e18", p.TotalShares())
	}

	g, r, s := p.Reserves()
	if !g.Equal(u(1000)) || !r.Equal(u(1000)) || !s.Equal(u(5000)) {
		t.Errorf("reserves = %s/%s/%s, want 1000/1000/5000", g, r, s)
	}

	// Reserves must equal the pool account's real balances.
	if !l.Balance(model.GreenToken, poolAcct).Equal(g) {
		t.Error("green reserve does not match pool account balance")
	}
	if !l.Balance(model.Stablecoin, poolAcct).Equal(s) {
		t.Error("stable reserve does not match pool account balance")
	}
	if !p.IsProvider(owner) {
		t.Error("fund should register the owner as provider")
	}
}

func TestFund_NonOwnerRejected(t *testing.T) {
	l := ledger.New()
	p := New(l, owner, poolAcct)
	for _, a := range model.Assets {
		l.Mint(a, lp1, u(10000))
	}

	_, err := p.Fund(lp1, u(100), u(100), u(100))
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestFund_InsufficientBalance(t *testing.T) {
	l := ledger.New()
	p := New(l, owner, poolAcct)
	l.Mint(model.Stablecoin, owner, u(10))

	_, err := p.Fund(owner, u(100), u(100), u(100))
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
	if !p.TotalShares().IsZero() {
		t.Error("failed fund must not mint shares")
	}
}

func TestFund_RepeatMintsProportional(t *testing.T) {
	_, p := newFundedPool(t)

	// Second fund of half the stable reserve mints half the shares.
	res, err := p.Fund(owner, u(500), u(500), u(2500))
	if err != nil {
		t.Fatalf("second fund: %v", err)
	}
	if !res.Shares.Equal(u(2500)) {
		t.Errorf("proportional fund shares = %s, want 2500e18", res.Shares)
	}
}

// --- Provider registry ---

func TestRegisterProvider_DuplicateFails(t *testing.T) {
	_, p := newFundedPool(t)

	if err := p.RegisterProvider(lp1); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if err := p.RegisterProvider(lp1); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("expected ErrAlreadyRegistered, got %v", err)
	}
	if !p.IsProvider(lp1) {
		t.Error("lp1 should remain registered after duplicate attempt")
	}
}

// --- Liquidity ---

func TestAddLiquidity_Proportional(t *testing.T) {
	l, p := newFundedPool(t)
	for _, a := range model.Assets {
		l.Mint(a, lp1, u(1000))
	}
	p.RegisterProvider(lp1)

	// 10% of each reserve mints 10% of outstanding shares.
	res, err := p.AddLiquidity(lp1, u(100), u(100), u(500))
	if err != nil {
		t.Fatalf("add liquidity: %v", err)
	}
	if !res.Shares.Equal(u(500)) {
		t.Errorf("minted shares = %s, want 500e18", res.Shares)
	}
	if !p.SharesOf(lp1).Equal(u(500)) {
		t.Errorf("lp1 shares = %s, want 500e18", p.SharesOf(lp1))
	}

	g, _, s := p.Reserves()
	if !g.Equal(u(1100)) || !s.Equal(u(5500)) {
		t.Errorf("reserves after add = green %s stable %s, want 1100/5500", g, s)
	}
}

func TestAddLiquidity_Unregistered(t *testing.T) {
	l, p := newFundedPool(t)
	for _, a := range model.Assets {
		l.Mint(a, trader, u(1000))
	}

	_, err := p.AddLiquidity(trader, u(100), u(100), u(500))
	if !errors.Is(err, ErrNotRegisteredProvider) {
		t.Errorf("expected ErrNotRegisteredProvider, got %v", err)
	}
}

func TestAddLiquidity_EmptyPool(t *testing.T) {
	l := ledger.New()
	p := New(l, owner, poolAcct)
	for _, a := range model.Assets {
		l.Mint(a, lp1, u(1000))
	}
	p.RegisterProvider(lp1)

	_, err := p.AddLiquidity(lp1, u(100), u(100), u(500))
	if !errors.Is(err, ErrPoolEmpty) {
		t.Errorf("expected ErrPoolEmpty, got %v", err)
	}
}

func TestRemoveLiquidity_ProRata(t *testing.T) {
	l, p := newFundedPool(t)
	for _, a := range model.Assets {
		l.Mint(a, lp1, u(1000))
	}
	p.RegisterProvider(lp1)
	p.AddLiquidity(lp1, u(100), u(100), u(500)) // 500 of 5500 shares

	res, err := p.RemoveLiquidity(lp1, u(500))
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	// 500/5500 of 1100/1100/5500 = 100/100/500.
	if !res.AmountGreen.Equal(u(100)) || !res.AmountRed.Equal(u(100)) || !res.AmountStable.Equal(u(500)) {
		t.Errorf("payouts = %s/%s/%s, want 100/100/500",
			res.AmountGreen, res.AmountRed, res.AmountStable)
	}
	if !p.SharesOf(lp1).IsZero() {
		t.Errorf("lp1 shares = %s, want 0", p.SharesOf(lp1))
	}
	// Round trip restored the pre-add balances exactly (no swaps, no fees).
	if !l.Balance(model.Stablecoin, lp1).Equal(u(1000)) {
		t.Errorf("lp1 stable = %s, want 1000e18", l.Balance(model.Stablecoin, lp1))
	}
}

func TestRemoveLiquidity_MoreThanHeld(t *testing.T) {
	_, p := newFundedPool(t)
	gBefore, rBefore, sBefore := p.Reserves()

	_, err := p.RemoveLiquidity(owner, u(5001))
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}

	g, r, s := p.Reserves()
	if !g.Equal(gBefore) || !r.Equal(rBefore) || !s.Equal(sBefore) {
		t.Error("failed remove must not change reserves")
	}
}

func TestRemoveLiquidity_FullDrainZeroesPool(t *testing.T) {
	_, p := newFundedPool(t)

	if _, err := p.RemoveLiquidity(owner, u(5000)); err != nil {
		t.Fatalf("full remove: %v", err)
	}
	g, r, s := p.Reserves()
	if !g.IsZero() || !r.IsZero() || !s.IsZero() {
		t.Errorf("reserves after full remove = %s/%s/%s, want zeros", g, r, s)
	}
	if !p.TotalShares().IsZero() {
		t.Errorf("total shares = %s, want 0", p.TotalShares())
	}
}

// --- Quotes ---

func TestQuote_ZeroAmountIsZero(t *testing.T) {
	_, p := newFundedPool(t)
	out, err := p.Quote(model.GreenToken, model.Stablecoin, decimal.Zero)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !out.IsZero() {
		t.Errorf("zero-in quote = %s, want 0", out)
	}
}

func TestGetPrice_ReferenceScenario(t *testing.T) {
	// Reserves 1000/1000/5000, 30 bps fee, sell 100 green:
	// afterFee = 99.7, out = 5000 - 1000*5000/1099.7 in base units.
	_, p := newFundedPool(t)

	out, err := p.GetPrice(model.GreenToken, u(100))
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	want := mustDec(t, "453305446940074565791")
	if !out.Equal(want) {
		t.Errorf("quote = %s, want %s", out, want)
	}
}

func TestGetPrice_MonotonicWithSlippage(t *testing.T) {
	_, p := newFundedPool(t)

	out10, _ := p.GetPrice(model.GreenToken, u(10))
	out20, _ := p.GetPrice(model.GreenToken, u(20))
	if !out20.GreaterThan(out10) {
		t.Errorf("larger input should buy more output: %s vs %s", out10, out20)
	}
	// Marginal price decreases: doubling input yields less than double output.
	if out20.GreaterThanOrEqual(out10.Mul(decimal.NewFromInt(2))) {
		t.Errorf("expected slippage: out(20)=%s >= 2*out(10)=%s", out20, out10.Mul(decimal.NewFromInt(2)))
	}
}

func TestGetPrice_NonTokenInput(t *testing.T) {
	_, p := newFundedPool(t)
	_, err := p.GetPrice(model.Stablecoin, u(10))
	if !errors.Is(err, ledger.ErrUnknownAsset) {
		t.Errorf("expected ErrUnknownAsset, got %v", err)
	}
}

// --- Swaps ---

func TestSellToStablecoin_ExactOutput(t *testing.T) {
	l, p := newFundedPool(t)
	l.Mint(model.GreenToken, trader, u(100))

	res, err := p.SellToStablecoin(trader, model.GreenToken, u(100))
	if err != nil {
		t.Fatalf("sell: %v", err)
	}

	wantOut := mustDec(t, "453305446940074565791")
	if !res.AmountOut.Equal(wantOut) {
		t.Errorf("amount out = %s, want %s", res.AmountOut, wantOut)
	}
	wantFee := mustDec(t, "300000000000000000")
	if !res.Fee.Equal(wantFee) {
		t.Errorf("fee = %s, want %s", res.Fee, wantFee)
	}

	g, _, s := p.Reserves()
	if !g.Equal(u(1100)) {
		t.Errorf("green reserve = %s, want 1100e18", g)
	}
	if !s.Equal(u(5000).Sub(wantOut)) {
		t.Errorf("stable reserve = %s, want %s", s, u(5000).Sub(wantOut))
	}
	if !l.Balance(model.Stablecoin, trader).Equal(wantOut) {
		t.Errorf("trader stable = %s, want %s", l.Balance(model.Stablecoin, trader), wantOut)
	}
}

func TestSwap_TokenForToken(t *testing.T) {
	l, p := newFundedPool(t)
	l.Mint(model.GreenToken, trader, u(100))

	res, err := p.Swap(trader, model.GreenToken, u(100))
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if res.AssetOut != model.RedToken {
		t.Errorf("asset out = %s, want RED", res.AssetOut)
	}
	want := mustDec(t, "90661089388014913159")
	if !res.AmountOut.Equal(want) {
		t.Errorf("amount out = %s, want %s", res.AmountOut, want)
	}

	// Stablecoin reserve untouched by a token-token swap (pairwise rule).
	_, _, s := p.Reserves()
	if !s.Equal(u(5000)) {
		t.Errorf("stable reserve = %s, should be untouched", s)
	}
}

func TestSwap_ProductNeverDecreases(t *testing.T) {
	l, p := newFundedPool(t)
	l.Mint(model.GreenToken, trader, u(500))

	gBefore, _, sBefore := p.Reserves()
	productBefore := gBefore.Mul(sBefore)

	if _, err := p.SellToStablecoin(trader, model.GreenToken, u(500)); err != nil {
		t.Fatalf("sell: %v", err)
	}

	g, _, s := p.Reserves()
	if g.Mul(s).LessThan(productBefore) {
		t.Errorf("product decreased: before %s, after %s", productBefore, g.Mul(s))
	}
}

func TestBuyWithStablecoin_ExactOutput(t *testing.T) {
	l, p := newFundedPool(t)
	l.Mint(model.Stablecoin, trader, u(250))

	res, err := p.BuyWithStablecoin(trader, model.GreenToken, u(250))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	want := mustDec(t, "47482973758155927038")
	if !res.AmountOut.Equal(want) {
		t.Errorf("amount out = %s, want %s", res.AmountOut, want)
	}
	if !l.Balance(model.GreenToken, trader).Equal(want) {
		t.Errorf("trader green = %s, want %s", l.Balance(model.GreenToken, trader), want)
	}
}

func TestSwap_EmptyPool(t *testing.T) {
	l := ledger.New()
	p := New(l, owner, poolAcct)
	l.Mint(model.GreenToken, trader, u(10))

	_, err := p.Swap(trader, model.GreenToken, u(10))
	if !errors.Is(err, ErrInsufficientReserve) {
		t.Errorf("expected ErrInsufficientReserve, got %v", err)
	}
}

func TestSwap_CallerLacksBalance(t *testing.T) {
	_, p := newFundedPool(t)

	_, err := p.Swap(trader, model.GreenToken, u(10))
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}

	// Atomicity: nothing moved.
	g, r, _ := p.Reserves()
	if !g.Equal(u(1000)) || !r.Equal(u(1000)) {
		t.Error("failed swap must not change reserves")
	}
}

func TestSwap_StablecoinRejected(t *testing.T) {
	_, p := newFundedPool(t)
	_, err := p.Swap(trader, model.Stablecoin, u(10))
	if !errors.Is(err, ledger.ErrUnknownAsset) {
		t.Errorf("expected ErrUnknownAsset, got %v", err)
	}
}

func TestSwap_InvalidAmount(t *testing.T) {
	_, p := newFundedPool(t)
	_, err := p.SellToStablecoin(trader, model.GreenToken, decimal.NewFromInt(-1))
	if !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestSwap_NeverDrainsReserve(t *testing.T) {
	l, p := newFundedPool(t)
	l.Mint(model.GreenToken, trader, u(1000000))

	res, err := p.SellToStablecoin(trader, model.GreenToken, u(1000000))
	if err != nil {
		t.Fatalf("huge sell: %v", err)
	}
	_, _, s := p.Reserves()
	if !s.IsPositive() {
		t.Errorf("stable reserve drained to %s", s)
	}
	if res.AmountOut.GreaterThanOrEqual(u(5000)) {
		t.Errorf("amount out %s must be strictly below the reserve", res.AmountOut)
	}
}
