// Package engine provides the HTTP handlers and orchestration for the
// race market: primary bets, pool trading, liquidity management,
// resolution, and redemption.
//
// All monetary values use shopspring/decimal — never float64 for money.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/raceline/market-engine/internal/ledger"
	"github.com/raceline/market-engine/internal/market"
	"github.com/raceline/market-engine/internal/metrics"
	"github.com/raceline/market-engine/internal/model"
	"github.com/raceline/market-engine/internal/pool"
	"github.com/raceline/market-engine/internal/risk"
	"github.com/raceline/market-engine/internal/store"
)

// Service orchestrates the ledger, pool, and market behind the HTTP
// API. Uses a mutex for serialized mutation execution (single-instance).
// For horizontal scaling, replace with distributed locking.
type Service struct {
	ledger  *ledger.Ledger
	pool    *pool.Pool
	market  *market.Market
	limiter *risk.StakeLimiter
	store   store.Store
	wsHub   *WSHub // optional WebSocket hub for real-time broadcasts

	marketID string

	mu        sync.Mutex
	openStake map[model.Account]decimal.Decimal
	seq       int64
}

// NewService creates a new engine service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(l *ledger.Ledger, p *pool.Pool, m *market.Market, limiter *risk.StakeLimiter, st store.Store, hub *WSHub) *Service {
	return &Service{
		ledger:    l,
		pool:      p,
		market:    m,
		limiter:   limiter,
		store:     st,
		wsHub:     hub,
		marketID:  m.Info().MarketID,
		openStake: make(map[model.Account]decimal.Decimal),
	}
}

// --- Request/Response types ---

// BetRequest is the JSON body for POST /bet.
type BetRequest struct {
	Account model.Account   `json:"account"`
	Token   model.Asset     `json:"token"`
	Amount  decimal.Decimal `json:"amount"` // stablecoin, base units
}

// TradeRequest is the JSON body for swap, sell, and pool trades.
type TradeRequest struct {
	Account model.Account   `json:"account"`
	Token   model.Asset     `json:"token"`
	Amount  decimal.Decimal `json:"amount"`
}

// LiquidityRequest is the JSON body for fund and add-liquidity.
type LiquidityRequest struct {
	Account model.Account   `json:"account"`
	Green   decimal.Decimal `json:"green"`
	Red     decimal.Decimal `json:"red"`
	Stable  decimal.Decimal `json:"stable"`
}

// RemoveLiquidityRequest is the JSON body for POST /pool/liquidity/remove.
type RemoveLiquidityRequest struct {
	Account model.Account   `json:"account"`
	Shares  decimal.Decimal `json:"shares"`
}

// RedeemRequest is the JSON body for POST /redeem. The caller's entire
// balance of the token is redeemed; there is no partial redemption.
type RedeemRequest struct {
	Account model.Account `json:"account"`
	Token   model.Asset   `json:"token"`
}

// ResolveRequest is the JSON body for POST /resolve.
type ResolveRequest struct {
	Account model.Account `json:"account"`
	Outcome string        `json:"outcome"` // "GREEN_WINS" or "RED_WINS"
}

// OracleRequest is the JSON body for POST /oracle.
type OracleRequest struct {
	Account model.Account `json:"account"`
	Oracle  model.Account `json:"oracle"`
}

// FaucetRequest is the JSON body for POST /faucet (development only).
type FaucetRequest struct {
	Account model.Account   `json:"account"`
	Asset   model.Asset     `json:"asset"`
	Amount  decimal.Decimal `json:"amount"`
}

// TradeResponse is the JSON body returned from trade endpoints.
type TradeResponse struct {
	TradeID string          `json:"trade_id"`
	Account model.Account   `json:"account"`
	Result  pool.SwapResult `json:"result"`
}

// --- HTTP handlers: reads ---

// GetMarketInfo handles GET /api/v1/market
func (s *Service) GetMarketInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.market.Info())
}

// GetPoolInfo handles GET /api/v1/pool
func (s *Service) GetPoolInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pool.Info())
}

// GetQuote handles GET /api/v1/price?token=GREEN&amount=<base units>
// Quotes selling the token for stablecoin without executing.
func (s *Service) GetQuote(w http.ResponseWriter, r *http.Request) {
	token := model.Asset(r.URL.Query().Get("token"))
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, "amount must be a base-unit integer", http.StatusBadRequest)
		return
	}

	out, err := s.pool.GetPrice(token, amount)
	if err != nil {
		writeError(w, err.Error(), statusForErr(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"amount_out": out})
}

// GetPayout handles GET /api/v1/payout?token=GREEN&amount=<base units>
// Quotes a redemption without executing. Unresolved markets and losing
// tokens quote zero.
func (s *Service) GetPayout(w http.ResponseWriter, r *http.Request) {
	token := model.Asset(r.URL.Query().Get("token"))
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, "amount must be a base-unit integer", http.StatusBadRequest)
		return
	}

	payout, err := s.market.CalculatePayout(token, amount)
	if err != nil {
		writeError(w, err.Error(), statusForErr(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"payout": payout})
}

// GetBalances handles GET /api/v1/balances/{account}
func (s *Service) GetBalances(w http.ResponseWriter, r *http.Request) {
	account := model.Account(chi.URLParam(r, "account"))
	resp := map[string]interface{}{
		"account":  account,
		"balances": s.ledger.Balances(account),
		"shares":   s.pool.SharesOf(account),
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJournal handles GET /api/v1/journal/{account}
func (s *Service) GetJournal(w http.ResponseWriter, r *http.Request) {
	account := model.Account(chi.URLParam(r, "account"))
	entries, err := s.store.JournalByAccount(r.Context(), account)
	if err != nil {
		writeError(w, "failed to load journal", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.JournalEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetFullJournal handles GET /api/v1/journal
func (s *Service) GetFullJournal(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.Journal(r.Context())
	if err != nil {
		writeError(w, "failed to load journal", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.JournalEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- HTTP handlers: primary market ---

// PlaceBet handles POST /api/v1/bet
// Pays stablecoin into the prize pool and mints the chosen outcome token.
func (s *Service) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req BetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Account == "" {
		writeError(w, "account is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limiter != nil {
		if err := s.limiter.CheckBet(req.Amount, s.openStake[req.Account]); err != nil {
			metrics.StakeLimitRejections.Inc()
			writeError(w, err.Error(), http.StatusConflict)
			return
		}
	}

	if err := s.market.BuyTokens(req.Account, req.Token, req.Amount); err != nil {
		writeError(w, err.Error(), statusForErr(err))
		return
	}
	s.openStake[req.Account] = s.openStake[req.Account].Add(req.Amount)

	metrics.BetsTotal.WithLabelValues(string(req.Token)).Inc()
	id := s.record(r.Context(), model.KindBet, req.Account,
		model.Stablecoin, req.Token, req.Amount, req.Amount, decimal.Zero)

	slog.Info("bet placed",
		"trade_id", id,
		"account", req.Account,
		"token", req.Token,
		"amount", req.Amount.String(),
		"collected", s.market.Collected().String(),
	)

	s.broadcastTrade("bet", req.Account, model.Stablecoin, req.Token, req.Amount, req.Amount)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"trade_id": id,
		"account":  req.Account,
		"token":    req.Token,
		"amount":   req.Amount,
	})
}

// SellPosition handles POST /api/v1/sell
// Exits a token position early through the pool.
func (s *Service) SellPosition(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	res, err := s.market.SellTokens(req.Account, req.Token, req.Amount)
	if err != nil {
		writeError(w, err.Error(), statusForErr(err))
		return
	}
	metrics.SwapLatency.Observe(time.Since(start).Seconds())
	metrics.SwapsTotal.WithLabelValues(string(res.AssetIn), string(res.AssetOut)).Inc()

	id := s.record(r.Context(), model.KindSell, req.Account,
		res.AssetIn, res.AssetOut, res.AmountIn, res.AmountOut, res.Fee)

	slog.Info("position sold",
		"trade_id", id,
		"account", req.Account,
		"token", req.Token,
		"amount_in", res.AmountIn.String(),
		"amount_out", res.AmountOut.String(),
	)

	s.broadcastTrade("sell", req.Account, res.AssetIn, res.AssetOut, res.AmountIn, res.AmountOut)
	writeJSON(w, http.StatusOK, TradeResponse{TradeID: id, Account: req.Account, Result: res})
}

// --- HTTP handlers: pool trading ---

func (s *Service) executePoolTrade(w http.ResponseWriter, r *http.Request, kind string,
	exec func(TradeRequest) (pool.SwapResult, error)) {

	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Account == "" {
		writeError(w, "account is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	res, err := exec(req)
	if err != nil {
		writeError(w, err.Error(), statusForErr(err))
		return
	}
	metrics.SwapLatency.Observe(time.Since(start).Seconds())
	metrics.SwapsTotal.WithLabelValues(string(res.AssetIn), string(res.AssetOut)).Inc()

	id := s.record(r.Context(), kind, req.Account,
		res.AssetIn, res.AssetOut, res.AmountIn, res.AmountOut, res.Fee)

	slog.Info("swap executed",
		"trade_id", id,
		"kind", kind,
		"account", req.Account,
		"asset_in", res.AssetIn,
		"asset_out", res.AssetOut,
		"amount_in", res.AmountIn.String(),
		"amount_out", res.AmountOut.String(),
		"fee", res.Fee.String(),
	)

	s.broadcastTrade(kind, req.Account, res.AssetIn, res.AssetOut, res.AmountIn, res.AmountOut)
	writeJSON(w, http.StatusOK, TradeResponse{TradeID: id, Account: req.Account, Result: res})
}

// SwapTokens handles POST /api/v1/swap
// Trades one outcome token for the other.
func (s *Service) SwapTokens(w http.ResponseWriter, r *http.Request) {
	s.executePoolTrade(w, r, model.KindSwap, func(req TradeRequest) (pool.SwapResult, error) {
		return s.pool.Swap(req.Account, req.Token, req.Amount)
	})
}

// PoolBuy handles POST /api/v1/pool/buy
// Trades stablecoin for an outcome token.
func (s *Service) PoolBuy(w http.ResponseWriter, r *http.Request) {
	s.executePoolTrade(w, r, model.KindPoolBuy, func(req TradeRequest) (pool.SwapResult, error) {
		return s.pool.BuyWithStablecoin(req.Account, req.Token, req.Amount)
	})
}

// PoolSell handles POST /api/v1/pool/sell
// Trades an outcome token for stablecoin.
func (s *Service) PoolSell(w http.ResponseWriter, r *http.Request) {
	s.executePoolTrade(w, r, model.KindPoolSell, func(req TradeRequest) (pool.SwapResult, error) {
		return s.pool.SellToStablecoin(req.Account, req.Token, req.Amount)
	})
}

// --- HTTP handlers: liquidity ---

func (s *Service) executeLiquidity(w http.ResponseWriter, r *http.Request, kind string,
	exec func(LiquidityRequest) (pool.LiquidityResult, error)) {

	var req LiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := exec(req)
	if err != nil {
		writeError(w, err.Error(), statusForErr(err))
		return
	}
	metrics.LiquidityEvents.WithLabelValues(kind).Inc()

	id := s.record(r.Context(), kind, req.Account,
		model.Stablecoin, "", res.AmountStable, res.Shares, decimal.Zero)

	slog.Info("liquidity event",
		"trade_id", id,
		"kind", kind,
		"account", req.Account,
		"shares", res.Shares.String(),
		"total_shares", res.TotalShares.String(),
	)

	writeJSON(w, http.StatusOK, res)
}

// FundPool handles POST /api/v1/pool/fund (owner only).
func (s *Service) FundPool(w http.ResponseWriter, r *http.Request) {
	s.executeLiquidity(w, r, model.KindFund, func(req LiquidityRequest) (pool.LiquidityResult, error) {
		return s.pool.Fund(req.Account, req.Green, req.Red, req.Stable)
	})
}

// AddLiquidity handles POST /api/v1/pool/liquidity
func (s *Service) AddLiquidity(w http.ResponseWriter, r *http.Request) {
	s.executeLiquidity(w, r, model.KindAddLiquidity, func(req LiquidityRequest) (pool.LiquidityResult, error) {
		return s.pool.AddLiquidity(req.Account, req.Green, req.Red, req.Stable)
	})
}

// RegisterProvider handles POST /api/v1/pool/providers
func (s *Service) RegisterProvider(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account model.Account `json:"account"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.pool.RegisterProvider(req.Account); err != nil {
		writeError(w, err.Error(), statusForErr(err))
		return
	}
	slog.Info("provider registered", "account", req.Account)
	writeJSON(w, http.StatusOK, map[string]interface{}{"account": req.Account, "registered": true})
}

// RemoveLiquidity handles POST /api/v1/pool/liquidity/remove
func (s *Service) RemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	var req RemoveLiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.pool.RemoveLiquidity(req.Account, req.Shares)
	if err != nil {
		writeError(w, err.Error(), statusForErr(err))
		return
	}
	metrics.LiquidityEvents.WithLabelValues(model.KindRemoveLiquidity).Inc()

	id := s.record(r.Context(), model.KindRemoveLiquidity, req.Account,
		"", model.Stablecoin, res.Shares, res.AmountStable, decimal.Zero)

	slog.Info("liquidity removed",
		"trade_id", id,
		"account", req.Account,
		"shares", res.Shares.String(),
		"total_shares", res.TotalShares.String(),
	)

	writeJSON(w, http.StatusOK, res)
}

// --- HTTP handlers: resolution lifecycle ---

// ResolveMarket handles POST /api/v1/resolve (oracle only).
func (s *Service) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var outcome model.Outcome
	switch req.Outcome {
	case "GREEN_WINS":
		outcome = model.OutcomeGreenWins
	case "RED_WINS":
		outcome = model.OutcomeRedWins
	default:
		writeError(w, "outcome must be GREEN_WINS or RED_WINS", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.market.Resolve(req.Account, outcome); err != nil {
		writeError(w, err.Error(), statusForErr(err))
		return
	}
	metrics.MarketActive.Set(0)

	id := s.record(r.Context(), model.KindResolve, req.Account,
		"", outcome.WinningToken(), decimal.Zero, decimal.Zero, decimal.Zero)

	slog.Info("market resolved",
		"trade_id", id,
		"oracle", req.Account,
		"outcome", outcome.String(),
		"collected", s.market.Collected().String(),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "market_resolved",
			MarketID: s.marketID,
			Outcome:  outcome.String(),
		})
	}
	writeJSON(w, http.StatusOK, s.market.Info())
}

// Redeem handles POST /api/v1/redeem
// Burns the caller's whole winning-token balance for a pro-rata share
// of the prize pool.
func (s *Service) Redeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	burned, payout, err := s.market.RedeemTokens(req.Account, req.Token)
	if err != nil {
		writeError(w, err.Error(), statusForErr(err))
		return
	}
	metrics.RedemptionsTotal.Inc()

	id := s.record(r.Context(), model.KindRedeem, req.Account,
		req.Token, model.Stablecoin, burned, payout, decimal.Zero)

	slog.Info("tokens redeemed",
		"trade_id", id,
		"account", req.Account,
		"token", req.Token,
		"burned", burned.String(),
		"payout", payout.String(),
	)

	s.broadcastTrade("redeem", req.Account, req.Token, model.Stablecoin, burned, payout)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"trade_id": id,
		"account":  req.Account,
		"burned":   burned,
		"payout":   payout,
	})
}

// SetOracle handles POST /api/v1/oracle (owner only).
func (s *Service) SetOracle(w http.ResponseWriter, r *http.Request) {
	var req OracleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.market.SetOracle(req.Account, req.Oracle); err != nil {
		writeError(w, err.Error(), statusForErr(err))
		return
	}
	slog.Info("oracle updated", "owner", req.Account, "oracle", req.Oracle)
	writeJSON(w, http.StatusOK, map[string]interface{}{"oracle": req.Oracle})
}

// Faucet handles POST /api/v1/faucet
// Mints assets for development and demos. Disable in production.
func (s *Service) Faucet(w http.ResponseWriter, r *http.Request) {
	var req FaucetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ledger.Mint(req.Asset, req.Account, req.Amount); err != nil {
		writeError(w, err.Error(), statusForErr(err))
		return
	}
	slog.Info("faucet mint", "account", req.Account, "asset", req.Asset, "amount", req.Amount.String())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account": req.Account,
		"asset":   req.Asset,
		"balance": s.ledger.Balance(req.Asset, req.Account),
	})
}

// --- Internal helpers ---

// record appends a journal entry and a post-mutation snapshot. Failures
// are logged, not surfaced: the in-memory mutation already happened and
// is authoritative.
func (s *Service) record(ctx context.Context, kind string, account model.Account,
	assetIn, assetOut model.Asset, amountIn, amountOut, fee decimal.Decimal) string {

	entry := &model.JournalEntry{
		ID:        uuid.New().String(),
		Account:   account,
		Kind:      kind,
		AssetIn:   assetIn,
		AssetOut:  assetOut,
		AmountIn:  amountIn,
		AmountOut: amountOut,
		Fee:       fee,
		Timestamp: time.Now().UTC(),
	}
	if err := s.store.AppendJournal(ctx, entry); err != nil {
		slog.Error("journal append failed", "err", err, "kind", kind)
	}

	s.seq++
	snap := &model.EngineSnapshot{
		ID:       uuid.New().String(),
		Sequence: s.seq,
		Market:   s.market.Info(),
		Pool:     s.pool.Info(),
		TakenAt:  time.Now().UTC(),
	}
	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		slog.Error("snapshot save failed", "err", err, "sequence", s.seq)
	}
	return entry.ID
}

func (s *Service) broadcastTrade(typ string, account model.Account,
	assetIn, assetOut model.Asset, amountIn, amountOut decimal.Decimal) {

	if s.wsHub == nil {
		return
	}
	green, red, stable := s.pool.Reserves()
	s.wsHub.Broadcast(WSMessage{
		Type:          typ,
		MarketID:      s.marketID,
		Account:       string(account),
		AssetIn:       string(assetIn),
		AssetOut:      string(assetOut),
		AmountIn:      amountIn.String(),
		AmountOut:     amountOut.String(),
		ReserveGreen:  green.String(),
		ReserveRed:    red.String(),
		ReserveStable: stable.String(),
	})
}

// statusForErr maps domain sentinels onto HTTP status codes: caller
// mistakes are 400, authorization failures 403, state conflicts 409.
func statusForErr(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrUnknownAsset),
		errors.Is(err, market.ErrInvalidOutcome):
		return http.StatusBadRequest
	case errors.Is(err, pool.ErrUnauthorized),
		errors.Is(err, market.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, pool.ErrAlreadyRegistered),
		errors.Is(err, pool.ErrNotRegisteredProvider),
		errors.Is(err, pool.ErrPoolEmpty),
		errors.Is(err, pool.ErrInsufficientReserve),
		errors.Is(err, market.ErrMarketClosed),
		errors.Is(err, market.ErrTooEarly),
		errors.Is(err, market.ErrAlreadyResolved),
		errors.Is(err, market.ErrNotResolved),
		errors.Is(err, market.ErrNotWinningToken):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
