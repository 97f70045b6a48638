// Package redis publishes signal lifecycle events for downstream
// consumers: PubSub for the gateway fan-out, a capped stream for replay,
// and latest-state keys for REST reads. Writes run through a circuit
// breaker so a Redis outage degrades publishing instead of stalling the
// scheduler.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"signal-systemv1/internal/metrics"
	"signal-systemv1/internal/model"
)

const (
	// EventStream is the capped replay stream of all lifecycle events.
	EventStream = "stream:signals"
	// ActiveSignalsKey is the hash of active signals, keyed by signal id.
	ActiveSignalsKey = "signals:active"
	// SessionStatsKey holds the latest session stats snapshot.
	SessionStatsKey = "signals:session"
	// ServiceStatusKey holds the latest scheduler status snapshot.
	ServiceStatusKey = "signals:status"
	// AllChannel receives every event regardless of symbol.
	AllChannel = "pub:signals:all"

	streamMaxLen    = 5000
	closedSignalTTL = 24 * time.Hour
)

// PublisherConfig configures the Redis publisher.
type PublisherConfig struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int

	// Circuit breaker tuning; zero values take 5 failures / 10s.
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
}

// Publisher writes lifecycle events to Redis.
type Publisher struct {
	client  *goredis.Client
	breaker *CircuitBreaker
	metrics *metrics.Metrics // optional
}

// SetMetrics wires publish latency and event counters.
func (p *Publisher) SetMetrics(m *metrics.Metrics) { p.metrics = m }

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Breaker exposes the circuit breaker, for state metrics.
func (p *Publisher) Breaker() *CircuitBreaker { return p.breaker }

// NewPublisher creates a Publisher and pings the server.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	maxFailures := cfg.BreakerMaxFailures
	if maxFailures <= 0 {
		maxFailures = 5
	}
	resetTimeout := cfg.BreakerResetTimeout
	if resetTimeout <= 0 {
		resetTimeout = 10 * time.Second
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{
		client:  client,
		breaker: NewCircuitBreaker(maxFailures, resetTimeout),
	}, nil
}

// Run reads events from eventCh and publishes them.
// Blocks until ctx is cancelled or eventCh is closed.
func (p *Publisher) Run(ctx context.Context, eventCh <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			p.PublishEvent(ctx, ev)
		}
	}
}

// PublishEvent performs the pipelined writes for one event: PUBLISH on the
// symbol channel and the all-events channel, XADD to the replay stream,
// and the latest-state key updates the gateway serves REST reads from.
func (p *Publisher) PublishEvent(ctx context.Context, ev model.Event) {
	jsonData := string(ev.JSON())
	start := time.Now()

	err := p.breaker.Execute(func() error {
		pipe := p.client.Pipeline()

		pipe.Publish(ctx, ev.Channel(), jsonData)
		if ev.Channel() != AllChannel {
			pipe.Publish(ctx, AllChannel, jsonData)
		}

		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: EventStream,
			MaxLen: streamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": jsonData},
		})

		switch ev.Type {
		case model.EventSignalOpened:
			if ev.Signal != nil {
				pipe.HSet(ctx, ActiveSignalsKey, ev.Signal.ID, string(ev.Signal.JSON()))
			}
		case model.EventSignalClosed:
			pipe.HDel(ctx, ActiveSignalsKey, ev.SignalID)
			pipe.Set(ctx, "signal:closed:"+ev.SignalID, jsonData, closedSignalTTL)
		case model.EventSessionUpdate:
			if ev.Stats != nil {
				pipe.Set(ctx, SessionStatsKey, jsonData, 0)
			}
		}

		_, err := pipe.Exec(ctx)
		return err
	})
	if err == ErrCircuitOpen {
		return // outage already logged on trip
	}
	if err != nil {
		log.Printf("[redis] publish error for %s event: %v", ev.Type, err)
		return
	}
	if p.metrics != nil {
		p.metrics.RedisPublishDur.Observe(time.Since(start).Seconds())
		p.metrics.EventsPublished.WithLabelValues(string(ev.Type)).Inc()
	}
}

// PublishStatus writes the scheduler status snapshot for gateway REST reads.
func (p *Publisher) PublishStatus(ctx context.Context, status model.ServiceStatus) {
	data, err := json.Marshal(status)
	if err != nil {
		return
	}
	err = p.breaker.Execute(func() error {
		return p.client.Set(ctx, ServiceStatusKey, string(data), 0).Err()
	})
	if err != nil && err != ErrCircuitOpen {
		log.Printf("[redis] publish status error: %v", err)
	}
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
