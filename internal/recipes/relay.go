// Package recipes relays generated recipes to browsers as server-sent events.
package recipes

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zipbob/edge/internal/logctx"
)

const defaultHeartbeat = 30 * time.Second

// Relay subscribes each stream request to a Redis pub/sub channel and writes
// every message as one SSE event.
type Relay struct {
	redis     redis.UniversalClient
	channel   string
	heartbeat time.Duration
}

// NewRelay creates a relay for channel. heartbeat <= 0 uses thirty seconds.
func NewRelay(client redis.UniversalClient, channel string, heartbeat time.Duration) *Relay {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &Relay{redis: client, channel: channel, heartbeat: heartbeat}
}

// Publish sends recipe to every connected stream.
func (r *Relay) Publish(ctx context.Context, recipe string) error {
	return r.redis.Publish(ctx, r.channel, recipe).Err()
}

// ServeHTTP streams until the client disconnects or the subscription breaks.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	log := logctx.From(ctx)

	sub := r.redis.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		log.Error("recipe subscription failed", "error", err)
		http.Error(w, "recipe stream unavailable", http.StatusServiceUnavailable)
		return
	}

	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		log.Error("recipe stream cannot flush", "error", err)
		return
	}

	messages := sub.Channel()
	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				log.Warn("recipe subscription closed")
				return
			}
			if err := writeEvent(w, msg.Payload); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, payload string) error {
	var b strings.Builder
	for _, line := range strings.Split(payload, "\n") {
		b.WriteString("data: ")
		b.WriteString(strings.TrimSuffix(line, "\r"))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	_, err := fmt.Fprint(w, b.String())
	return err
}
