package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"signal-systemv1/config"
	"signal-systemv1/internal/broadcast"
	"signal-systemv1/internal/engine"
	"signal-systemv1/internal/lifecycle"
	"signal-systemv1/internal/logger"
	"signal-systemv1/internal/marketdata/deriv"
	"signal-systemv1/internal/marketdata/synthetic"
	"signal-systemv1/internal/metrics"
	"signal-systemv1/internal/notification"
	"signal-systemv1/internal/scheduler"
	redisstore "signal-systemv1/internal/store/redis"
	sqlitestore "signal-systemv1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[engine] starting...")

	logger.Init("signal-engine", slog.LevelInfo)

	cfg := config.Load()
	symbols := cfg.ParseSymbols()
	timeframes := cfg.ParseTimeframes()
	if len(symbols) == 0 || len(timeframes) == 0 {
		log.Fatalf("[engine] no symbols or timeframes configured")
	}
	log.Printf("[engine] monitoring %v on %v", symbols, timeframes)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetSymbols(symbols)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite journal (off hot path) ----
	os.MkdirAll("data", 0o755)
	journal, err := sqlitestore.New(sqlitestore.JournalConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[engine] sqlite init failed: %v", err)
	}
	defer journal.Close()
	journal.SetMetrics(prom)
	health.SetSQLiteOK(true)
	log.Println("[engine] sqlite journal ready")

	// ---- Redis publisher ----
	publisher, err := redisstore.NewPublisher(redisstore.PublisherConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Printf("[engine] WARNING: redis init failed: %v (continuing without redis)", err)
		health.SetRedisConnected(false)
		publisher = nil
	} else {
		defer publisher.Close()
		publisher.SetMetrics(prom)
		publisher.Breaker().OnStateChange = func(from, to redisstore.State) {
			prom.RedisCircuitBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				prom.RedisCircuitBreakerTrips.Inc()
			}
		}
		health.SetRedisConnected(true)
		log.Println("[engine] redis publisher ready")
	}

	// ---- Periodic liveness checks ----
	if publisher != nil {
		health.StartLivenessChecker(ctx, publisher.Client(), journal.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, journal.DB(), 10*time.Second)
	}

	// ---- Deriv market data feed ----
	feed := deriv.New(deriv.Config{
		URL:      cfg.DerivWSURL + "?app_id=" + cfg.DerivAppID,
		APIToken: cfg.DerivAPIToken,
	})
	feed.OnReconnect = func() {
		prom.DerivReconnects.Inc()
		health.SetFeedConnected(true)
		health.SetLastTickAt(time.Now())
	}
	go feed.Run(ctx)

	// ---- Analysis pipeline ----
	fallback := synthetic.New(cfg.SyntheticSeed)
	analyzer := engine.NewAnalyzer(engine.Config{
		MinSetupQuality: cfg.MinSetupQuality,
		MinRiskReward:   cfg.MinRiskReward,
		AccountBalance:  cfg.AccountBalance,
		RiskPerTrade:    cfg.RiskPerTrade,
	}, feed, fallback)

	manager := lifecycle.NewManager(cfg.SignalExpiry)

	sched := scheduler.New(scheduler.Config{
		Symbols:       symbols,
		Timeframes:    timeframes,
		Interval:      cfg.CheckInterval,
		MinPipsTarget: cfg.MinPipsTarget,
	}, analyzer, manager, fallback, prom)
	health.SetSchedulerOK(true)

	// ---- Event fan-out: redis, sqlite, alerts ----
	fanout := broadcast.NewFanOut(256)
	fanout.OnDrop = func(subscriberIdx int) {
		prom.FanoutDrops.WithLabelValues(strconv.Itoa(subscriberIdx)).Inc()
	}

	journalCh := fanout.Subscribe()
	go journal.Run(ctx, journalCh)

	if publisher != nil {
		redisCh := fanout.Subscribe()
		go publisher.Run(ctx, redisCh)
	}

	notifiers := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	monitor := notification.NewMonitor(notifiers...)
	monitorCh := fanout.Subscribe()
	go monitor.Run(ctx, monitorCh)

	go fanout.Run(ctx, sched.Events())

	// ---- Periodic status snapshot for the gateway ----
	if publisher != nil {
		go func() {
			ticker := time.NewTicker(cfg.CheckInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					publisher.PublishStatus(ctx, sched.Status())
				}
			}
		}()
	}

	go sched.Run(ctx)

	log.Println("[engine] ╔════════════════════════════════════════════════════════════╗")
	log.Println("[engine] ║  Silver Bullet Signal Engine                               ║")
	log.Println("[engine] ║                                                            ║")
	log.Println("[engine] ║  [Deriv WS] → [Analysis] → [Lifecycle] → [Redis/SQLite]    ║")
	log.Printf("[engine] ║  Symbols: %-48v ║", symbols)
	log.Printf("[engine] ║  Interval: %-47v ║", cfg.CheckInterval)
	log.Println("[engine] ╚════════════════════════════════════════════════════════════╝")

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[engine] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	log.Println("[engine] shutdown complete.")
}
