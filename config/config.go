package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"signal-systemv1/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Deriv market data feed
	DerivAppID    string
	DerivAPIToken string
	DerivWSURL    string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	GatewayAddr   string

	// Monitoring universe
	Symbols    string // comma-separated, e.g. "frxEURUSD,frxGBPUSD"
	Timeframes string // comma-separated, e.g. "M15,H1,H4"

	// Scheduler
	CheckInterval time.Duration
	MinPipsTarget float64
	SignalExpiry  time.Duration

	// Setup composition
	MinSetupQuality float64
	MinRiskReward   float64
	AccountBalance  float64
	RiskPerTrade    float64

	// Alerts
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string

	// Synthetic fallback seed (0 = time-based)
	SyntheticSeed int64
}

// Load reads configuration from environment variables with sensible defaults.
// The Deriv token is optional: without it the engine runs on the public
// candle history endpoints only.
func Load() *Config {
	return &Config{
		DerivAppID:    getEnv("DERIV_APP_ID", "1089"),
		DerivAPIToken: getEnv("DERIV_API_TOKEN", ""),
		DerivWSURL:    getEnv("DERIV_WS_URL", "wss://ws.derivws.com/websockets/v3"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/signals.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		GatewayAddr:   getEnv("GATEWAY_ADDR", ":8080"),

		Symbols:    getEnv("SYMBOLS", "frxEURUSD,frxGBPUSD,frxUSDJPY"),
		Timeframes: getEnv("TIMEFRAMES", "M15,H1,H4"),

		CheckInterval: getDuration("CHECK_INTERVAL", 30*time.Second),
		MinPipsTarget: getFloat("MIN_PIPS_TARGET", 20),
		SignalExpiry:  getDuration("SIGNAL_EXPIRY", 4*time.Hour),

		MinSetupQuality: getFloat("MIN_SETUP_QUALITY", 0.7),
		MinRiskReward:   getFloat("MIN_RISK_REWARD", 2.0),
		AccountBalance:  getFloat("ACCOUNT_BALANCE", 10000),
		RiskPerTrade:    getFloat("RISK_PER_TRADE", 0.02),

		WebhookURL:       getEnv("ALERT_WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		SyntheticSeed: getInt64("SYNTHETIC_SEED", 0),
	}
}

// ParseSymbols splits the Symbols string into a slice.
func (c *Config) ParseSymbols() []string {
	parts := strings.Split(c.Symbols, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseTimeframes parses the Timeframes string into valid timeframes,
// skipping unknown values.
func (c *Config) ParseTimeframes() []model.Timeframe {
	parts := strings.Split(c.Timeframes, ",")
	out := make([]model.Timeframe, 0, len(parts))
	for _, p := range parts {
		tf := model.Timeframe(strings.TrimSpace(p))
		if tf == "" {
			continue
		}
		if !tf.Valid() {
			log.Printf("[config] skipping invalid timeframe: %q", p)
			continue
		}
		out = append(out, tf)
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return d
}
