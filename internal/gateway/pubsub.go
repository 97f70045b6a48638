package gateway

import (
	"context"
	"log"
)

// PubSubRouter subscribes to the engine's signal channels and routes
// messages to the broadcaster for fan-out to WebSocket clients.
type PubSubRouter struct {
	hub *Hub
}

// NewPubSubRouter creates a PubSubRouter backed by the given Hub.
func NewPubSubRouter(hub *Hub) *PubSubRouter {
	return &PubSubRouter{hub: hub}
}

// Run subscribes to per-symbol signal channels by pattern and routes
// messages. Blocks until ctx is cancelled.
func (r *PubSubRouter) Run(ctx context.Context) {
	pubsub := r.hub.Rdb.PSubscribe(ctx, "pub:signals:*")
	defer pubsub.Close()

	log.Printf("[gateway] subscribed to pub:signals:* for %d symbols", len(r.hub.Symbols))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			// The all-events channel duplicates per-symbol publishes;
			// routing it too would double-deliver to clients.
			if msg.Channel == "pub:signals:all" {
				continue
			}
			r.hub.broadcast(msg.Channel, []byte(msg.Payload))
		}
	}
}
