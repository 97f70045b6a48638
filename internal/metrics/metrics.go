package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the signal engine.
type Metrics struct {
	SchedulerTicks  prometheus.Counter
	AnalysisDur     prometheus.Histogram
	AnalysisErrors  prometheus.Counter
	PriceFetchDur   prometheus.Histogram
	SyntheticFills  prometheus.Counter // analyses served by the synthetic fallback
	FallbackSignals prometheus.Counter // synthetic signals admitted after engine failure

	SignalsOpened prometheus.Counter
	SignalsClosed *prometheus.CounterVec // labels: reason
	SignalsDedup  prometheus.Counter
	ActiveSignals prometheus.Gauge
	SessionPips   prometheus.Gauge

	SetupsEvaluated prometheus.Counter
	SetupsAccepted  prometheus.Counter

	EventsPublished *prometheus.CounterVec // labels: type
	FanoutDrops     *prometheus.CounterVec // labels: subscriber

	RedisPublishDur          prometheus.Histogram
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	SQLiteCommitDur          prometheus.Histogram

	DerivReconnects prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		SchedulerTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_scheduler_ticks_total",
			Help: "Total scheduler polling cycles",
		}),
		AnalysisDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigengine_analysis_duration_seconds",
			Help:    "Full pipeline latency per (symbol, timeframe) pair",
			Buckets: prometheus.DefBuckets,
		}),
		AnalysisErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_analysis_errors_total",
			Help: "Analysis pair failures caught by the scheduler",
		}),
		PriceFetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigengine_price_fetch_duration_seconds",
			Help:    "Current-price fetch latency",
			Buckets: prometheus.DefBuckets,
		}),
		SyntheticFills: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_synthetic_analyses_total",
			Help: "Analyses served from synthetic candles after feed outage",
		}),
		FallbackSignals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_fallback_signals_total",
			Help: "Synthetic signals admitted after an engine failure",
		}),

		SignalsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_signals_opened_total",
			Help: "Signals admitted by the lifecycle manager",
		}),
		SignalsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_signals_closed_total",
			Help: "Signals closed (by exit reason)",
		}, []string{"reason"}),
		SignalsDedup: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_signals_deduplicated_total",
			Help: "Candidate signals rejected as near-duplicates",
		}),
		ActiveSignals: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigengine_active_signals",
			Help: "Currently tracked active signals",
		}),
		SessionPips: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigengine_session_pips",
			Help: "Cumulative session pips across closed signals",
		}),

		SetupsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_setups_evaluated_total",
			Help: "Silver Bullet setups produced by the composer",
		}),
		SetupsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_setups_accepted_total",
			Help: "Setups surviving quality and risk-reward filters",
		}),

		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_events_published_total",
			Help: "Lifecycle events emitted (by type)",
		}, []string{"type"}),
		FanoutDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_fanout_drops_total",
			Help: "Events dropped for slow broadcast subscribers",
		}, []string{"subscriber"}),

		RedisPublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigengine_redis_publish_duration_seconds",
			Help:    "Redis publish latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigengine_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker opened",
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigengine_sqlite_commit_duration_seconds",
			Help:    "SQLite journal commit latency",
			Buckets: prometheus.DefBuckets,
		}),

		DerivReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_deriv_reconnects_total",
			Help: "Deriv WebSocket reconnection attempts",
		}),
	}

	prometheus.MustRegister(
		m.SchedulerTicks,
		m.AnalysisDur,
		m.AnalysisErrors,
		m.PriceFetchDur,
		m.SyntheticFills,
		m.FallbackSignals,
		m.SignalsOpened,
		m.SignalsClosed,
		m.SignalsDedup,
		m.ActiveSignals,
		m.SessionPips,
		m.SetupsEvaluated,
		m.SetupsAccepted,
		m.EventsPublished,
		m.FanoutDrops,
		m.RedisPublishDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.SQLiteCommitDur,
		m.DerivReconnects,
	)

	return m
}

// HealthStatus represents the engine health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastTickAt     time.Time `json:"last_tick_at"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	SchedulerOK    bool      `json:"scheduler_ok"`
	Symbols        []string  `json:"symbols"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickAt(t time.Time) {
	h.mu.Lock()
	h.LastTickAt = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSchedulerOK(v bool) {
	h.mu.Lock()
	h.SchedulerOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSymbols(symbols []string) {
	h.mu.Lock()
	h.Symbols = symbols
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// Determine overall status
	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.FeedConnected || !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	// Tick age
	tickAge := ""
	if !h.LastTickAt.IsZero() {
		tickAge = time.Since(h.LastTickAt).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		FeedConnected   bool     `json:"feed_connected"`
		LastTickAt      string   `json:"last_tick_at"`
		TickAge         string   `json:"tick_age"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		SchedulerOK     bool     `json:"scheduler_ok"`
		Symbols         []string `json:"symbols"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastTickAt:      h.LastTickAt.Format(time.RFC3339),
		TickAge:         tickAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		SchedulerOK:     h.SchedulerOK,
		Symbols:         h.Symbols,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
