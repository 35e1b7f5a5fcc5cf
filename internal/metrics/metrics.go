// Package metrics provides Prometheus instrumentation for the market engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BetsTotal counts primary market buys, partitioned by outcome token.
	BetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raceline_bets_total",
		Help: "Total number of primary market bets placed",
	}, []string{"token"})

	// SwapsTotal counts pool swaps, partitioned by direction.
	SwapsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raceline_swaps_total",
		Help: "Total number of pool swaps executed",
	}, []string{"asset_in", "asset_out"})

	// SwapLatency tracks swap execution latency.
	SwapLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "raceline_swap_latency_seconds",
		Help:    "Swap execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// LiquidityEvents counts fund/add/remove operations.
	LiquidityEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raceline_liquidity_events_total",
		Help: "Total liquidity operations by kind",
	}, []string{"kind"})

	// RedemptionsTotal counts winning-token redemptions after resolution.
	RedemptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "raceline_redemptions_total",
		Help: "Total winning-token redemptions",
	})

	// StakeLimitRejections counts bets rejected by the stake limiter.
	StakeLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "raceline_stake_limit_rejections_total",
		Help: "Bets rejected by the stake limiter",
	})

	// MarketActive reports 1 while bets are accepted, 0 after close.
	MarketActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "raceline_market_active",
		Help: "Whether the market currently accepts bets (1) or not (0)",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "raceline_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raceline_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "raceline_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; the API surface is small enough
		// that cardinality stays bounded.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
