package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/raceline/market-engine/internal/engine"
	"github.com/raceline/market-engine/internal/fixedpoint"
	"github.com/raceline/market-engine/internal/ledger"
	"github.com/raceline/market-engine/internal/market"
	"github.com/raceline/market-engine/internal/metrics"
	"github.com/raceline/market-engine/internal/model"
	"github.com/raceline/market-engine/internal/pool"
	"github.com/raceline/market-engine/internal/risk"
	"github.com/raceline/market-engine/internal/store"
	"github.com/raceline/market-engine/internal/ticker"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := envOr("PORT", "8080")

	// --- Market parameters ---
	marketTicker := envOr("MARKET_TICKER", "RACE-MONACO-20260307")
	race, err := ticker.Parse(marketTicker)
	if err != nil {
		slog.Error("invalid MARKET_TICKER", "err", err)
		os.Exit(1)
	}
	startHour := int(envInt64("RACE_START_HOUR_UTC", ticker.DefaultStartHourUTC))
	endTime := race.EndTime(startHour)

	owner := model.Account(envOr("OWNER_ACCOUNT", "owner"))
	oracle := model.Account(envOr("ORACLE_ACCOUNT", "oracle"))

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pgPool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pgPool.Close)
		st = store.NewPostgresStore(pgPool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Core engine state ---
	l := ledger.New()
	p := pool.New(l, owner, "pool")
	m := market.New(l, p, market.Config{
		MarketID: race.Ticker,
		Owner:    owner,
		Oracle:   oracle,
		Account:  "market",
		EndTime:  endTime,
	})

	// --- Stake limits (whole-token env values, base units internally) ---
	maxPerBet := decimal.NewFromInt(envInt64("MAX_BET", 1000)).Mul(fixedpoint.Unit)
	maxOpenStake := decimal.NewFromInt(envInt64("MAX_OPEN_STAKE", 5000)).Mul(fixedpoint.Unit)
	limiter := risk.NewStakeLimiter(maxPerBet, maxOpenStake)

	// --- WebSocket hub ---
	wsHub := engine.NewWSHub()
	go wsHub.Run()

	// --- Engine service ---
	svc := engine.NewService(l, p, m, limiter, st, wsHub)

	if m.IsActive() {
		metrics.MarketActive.Set(1)
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"market-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time trade updates.
		r.Get("/ws", wsHub.HandleWS)

		// State reads.
		r.Get("/market", svc.GetMarketInfo)
		r.Get("/pool", svc.GetPoolInfo)
		r.Get("/price", svc.GetQuote)
		r.Get("/payout", svc.GetPayout)
		r.Get("/balances/{account}", svc.GetBalances)
		r.Get("/journal", svc.GetFullJournal)
		r.Get("/journal/{account}", svc.GetJournal)

		// Primary market.
		r.Post("/bet", svc.PlaceBet)
		r.Post("/sell", svc.SellPosition)

		// Pool trading.
		r.Post("/swap", svc.SwapTokens)
		r.Post("/pool/buy", svc.PoolBuy)
		r.Post("/pool/sell", svc.PoolSell)

		// Liquidity management.
		r.Post("/pool/fund", svc.FundPool)
		r.Post("/pool/providers", svc.RegisterProvider)
		r.Post("/pool/liquidity", svc.AddLiquidity)
		r.Post("/pool/liquidity/remove", svc.RemoveLiquidity)

		// Resolution lifecycle.
		r.Post("/oracle", svc.SetOracle)
		r.Post("/resolve", svc.ResolveMarket)
		r.Post("/redeem", svc.Redeem)

		// Development faucet.
		r.Post("/faucet", svc.Faucet)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("market-engine listening",
			"port", port,
			"market", race.Ticker,
			"end_time", endTime.Format(time.RFC3339),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down market-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("market-engine stopped")
}
