// Package deriv implements the marketdata.Feed contract on top of the
// Deriv WebSocket API (v3). Requests are correlated to responses via
// req_id; the connection is re-established with exponential backoff and
// re-authorized on reconnect.
package deriv

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"signal-systemv1/internal/marketdata"
	"signal-systemv1/internal/model"
)

// Config holds connection settings for the Deriv API.
type Config struct {
	// URL of the WebSocket endpoint, e.g.
	// "wss://ws.derivws.com/websockets/v3?app_id=1089".
	URL string

	// APIToken authorizes the session when non-empty. Historical candles
	// and ticks work unauthorized on the public endpoint.
	APIToken string

	// CallTimeout bounds a single request/response round trip.
	// Defaults to 10 seconds if zero.
	CallTimeout time.Duration

	// ReconnectDelay is the initial backoff before reconnect attempts.
	// Defaults to 2 seconds; doubled up to MaxReconnectDelay (30s).
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.CallTimeout == 0 {
		c.CallTimeout = 10 * time.Second
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Client is a request/response Deriv API client. Implements
// marketdata.Feed. Safe for concurrent use.
type Client struct {
	cfg Config

	reqID atomic.Int64

	mu        sync.Mutex
	conn      *websocket.Conn
	pending   map[int64]chan json.RawMessage
	connected bool

	// OnReconnect is called after each successful (re)connection.
	OnReconnect func()
}

// New creates a Client. Call Run to maintain the connection.
func New(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		cfg:     cfg,
		pending: make(map[int64]chan json.RawMessage),
	}
}

// Run dials the API and keeps the connection alive until ctx is cancelled,
// reconnecting with exponential backoff. Blocks.
func (c *Client) Run(ctx context.Context) {
	delay := c.cfg.ReconnectDelay
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.connect(ctx); err != nil {
			log.Printf("[deriv] connect failed: %v (retrying in %s)", err, delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			if delay *= 2; delay > c.cfg.MaxReconnectDelay {
				delay = c.cfg.MaxReconnectDelay
			}
			continue
		}
		delay = c.cfg.ReconnectDelay

		// readLoop returns when the connection drops or ctx is cancelled.
		c.readLoop(ctx)
		c.teardown()
	}
}

func (c *Client) connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if c.cfg.APIToken != "" {
		if _, err := c.call(ctx, map[string]any{"authorize": c.cfg.APIToken}); err != nil {
			c.teardown()
			return fmt.Errorf("authorize: %w", err)
		}
		log.Printf("[deriv] authorized")
	}

	log.Printf("[deriv] connected to %s", c.cfg.URL)
	if c.OnReconnect != nil {
		c.OnReconnect()
	}
	return nil
}

func (c *Client) teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	// Fail all in-flight calls so callers fall back instead of hanging.
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Client) readLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	// The watcher must die with this connection, not with the process:
	// reconnects would otherwise leak one goroutine each.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[deriv] read error: %v", err)
			}
			return
		}

		var envelope struct {
			ReqID int64 `json:"req_id"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil || envelope.ReqID == 0 {
			continue // subscription pushes and malformed frames
		}

		c.mu.Lock()
		ch, ok := c.pending[envelope.ReqID]
		if ok {
			delete(c.pending, envelope.ReqID)
		}
		c.mu.Unlock()
		if ok {
			ch <- json.RawMessage(data)
			close(ch)
		}
	}
}

// call sends one request and waits for its correlated response.
func (c *Client) call(ctx context.Context, payload map[string]any) (json.RawMessage, error) {
	c.mu.Lock()
	if !c.connected || c.conn == nil {
		c.mu.Unlock()
		return nil, marketdata.ErrUnavailable
	}
	id := c.reqID.Add(1)
	payload["req_id"] = id
	ch := make(chan json.RawMessage, 1)
	c.pending[id] = ch
	err := c.conn.WriteJSON(payload)
	c.mu.Unlock()

	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("write: %w", err)
	}

	timer := time.NewTimer(c.cfg.CallTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("req %d: %w", id, marketdata.ErrUnavailable)
	case raw, ok := <-ch:
		if !ok {
			return nil, marketdata.ErrUnavailable
		}
		var apiErr struct {
			Error *struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != nil {
			return nil, fmt.Errorf("api error %s: %s", apiErr.Error.Code, apiErr.Error.Message)
		}
		return raw, nil
	}
}

// HistoricalCandles requests count bars of the given granularity (seconds),
// newest-last per the ticks_history contract.
func (c *Client) HistoricalCandles(ctx context.Context, symbol string, granularity, count int) (model.Series, error) {
	raw, err := c.call(ctx, map[string]any{
		"ticks_history":     symbol,
		"adjust_start_time": 1,
		"count":             count,
		"end":               "latest",
		"granularity":       granularity,
		"style":             "candles",
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Candles []struct {
			Epoch int64   `json:"epoch"`
			Open  float64 `json:"open"`
			High  float64 `json:"high"`
			Low   float64 `json:"low"`
			Close float64 `json:"close"`
		} `json:"candles"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode candles: %w", err)
	}

	series := make(model.Series, 0, len(resp.Candles))
	for _, c := range resp.Candles {
		series = append(series, model.Candle{
			Timestamp: time.Unix(c.Epoch, 0).UTC(),
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
		})
	}
	return series, nil
}

// CurrentPrice requests the last traded tick for a symbol.
func (c *Client) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	raw, err := c.call(ctx, map[string]any{
		"ticks_history": symbol,
		"count":         1,
		"end":           "latest",
		"style":         "ticks",
	})
	if err != nil {
		return 0, err
	}

	var resp struct {
		History struct {
			Prices []float64 `json:"prices"`
		} `json:"history"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return 0, fmt.Errorf("decode ticks: %w", err)
	}
	if len(resp.History.Prices) == 0 {
		return 0, marketdata.ErrUnavailable
	}
	return resp.History.Prices[len(resp.History.Prices)-1], nil
}
