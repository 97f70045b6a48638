package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"

	"signal-systemv1/internal/model"
	storeredis "signal-systemv1/internal/store/redis"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, rdb *goredis.Client, processStart time.Time) {
	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		lastTS := r.URL.Query().Get("last_ts")
		hub.HandleWSRequest(conn, lastTS)
	})

	// REST: active signals, optionally filtered by symbol
	mux.HandleFunc("/api/signals/active", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		entries, err := rdb.HGetAll(r.Context(), storeredis.ActiveSignalsKey).Result()
		if err != nil {
			http.Error(w, `{"error":"redis unavailable"}`, http.StatusServiceUnavailable)
			return
		}

		symbol := r.URL.Query().Get("symbol")
		signals := make([]*model.Signal, 0, len(entries))
		for _, raw := range entries {
			var sig model.Signal
			if err := json.Unmarshal([]byte(raw), &sig); err != nil {
				continue
			}
			if symbol != "" && sig.Symbol != symbol {
				continue
			}
			signals = append(signals, &sig)
		}
		sort.Slice(signals, func(i, j int) bool {
			return signals[i].CreatedAt.Before(signals[j].CreatedAt)
		})

		json.NewEncoder(w).Encode(map[string]interface{}{
			"signals": signals,
			"count":   len(signals),
		})
	})

	// REST: recent lifecycle events from the replay stream
	mux.HandleFunc("/api/signals/events", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		limit := 100
		if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 1000 {
			limit = l
		}

		msgs, err := rdb.XRevRangeN(r.Context(), storeredis.EventStream, "+", "-", int64(limit)).Result()
		if err != nil {
			json.NewEncoder(w).Encode([]interface{}{})
			return
		}
		// Reverse to chronological order
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}

		events := make([]json.RawMessage, 0, len(msgs))
		for _, msg := range msgs {
			dataStr, ok := msg.Values["data"].(string)
			if !ok {
				continue
			}
			events = append(events, json.RawMessage(dataStr))
		}
		json.NewEncoder(w).Encode(events)
	})

	// REST: session performance summary
	mux.HandleFunc("/api/session/summary", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		raw, err := rdb.Get(r.Context(), storeredis.SessionStatsKey).Result()
		if err == goredis.Nil {
			json.NewEncoder(w).Encode(model.SessionStats{})
			return
		}
		if err != nil {
			http.Error(w, `{"error":"redis unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		// Stored as a session_update event; unwrap its stats.
		var ev model.Event
		if json.Unmarshal([]byte(raw), &ev) == nil && ev.Stats != nil {
			json.NewEncoder(w).Encode(ev.Stats)
			return
		}
		w.Write([]byte(raw))
	})

	// REST: engine status snapshot
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		raw, err := rdb.Get(r.Context(), storeredis.ServiceStatusKey).Result()
		if err == goredis.Nil {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"is_running": false,
				"detail":     "no status published by engine",
			})
			return
		}
		if err != nil {
			http.Error(w, `{"error":"redis unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(raw))
	})

	// REST: latest payload per channel
	mux.HandleFunc("/api/signals/latest", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(hub.GetLatestAll())
	})

	// REST: replay missed envelopes for a channel in [from, to]
	mux.HandleFunc("/api/missed", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		channel := r.URL.Query().Get("channel")
		from, _ := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
		to, _ := strconv.ParseInt(r.URL.Query().Get("to"), 10, 64)
		if channel == "" || from <= 0 {
			http.Error(w, `{"error":"channel and from are required"}`, http.StatusBadRequest)
			return
		}
		if to <= 0 {
			to = hub.GetChannelSeq(channel)
		}

		envelopes := hub.GetReplayRange(channel, from, to)
		out := make([]json.RawMessage, len(envelopes))
		for i, e := range envelopes {
			out[i] = json.RawMessage(e)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"channel":   channel,
			"from":      from,
			"to":        to,
			"envelopes": out,
		})
	})

	// REST: gateway resource metrics
	mux.HandleFunc("/api/metrics", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		m := CollectMetrics(processStart)
		m.WSClients = hub.ClientCount()
		json.NewEncoder(w).Encode(m)
	})

	// Health endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		redisOK := true
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			redisOK = false
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     "ok",
			"redis":      redisOK,
			"ws_clients": hub.ClientCount(),
			"uptime_sec": int64(time.Since(processStart).Seconds()),
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
