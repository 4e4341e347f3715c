package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Kind names the email template the worker renders.
type Kind string

const (
	KindWelcome Kind = "welcome"
	KindGoodbye Kind = "goodbye"
)

// Event is one email request.
type Event struct {
	Kind      Kind
	Email     string
	Nickname  string
	MemberID  int64
	Timestamp time.Time
}

// Sink delivers events. Errors are logged by the dispatcher and never reach
// the request that triggered the event.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// NoOpSink drops events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) error { return nil }

// ChannelSink writes events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) error {
	select {
	case s.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// RedisStreamSink appends events to a capped Redis stream.
type RedisStreamSink struct {
	redis  redis.UniversalClient
	stream string
	maxLen int64
}

// NewRedisStreamSink creates a sink writing to stream, trimmed to roughly maxLen
// entries. maxLen <= 0 disables trimming.
func NewRedisStreamSink(client redis.UniversalClient, stream string, maxLen int64) *RedisStreamSink {
	return &RedisStreamSink{
		redis:  client,
		stream: stream,
		maxLen: maxLen,
	}
}

func (s *RedisStreamSink) Emit(ctx context.Context, event Event) error {
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"kind":      string(event.Kind),
			"email":     event.Email,
			"nickname":  event.Nickname,
			"member_id": strconv.FormatInt(event.MemberID, 10),
			"timestamp": event.Timestamp.UTC().Format(time.RFC3339),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.redis.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("notify: xadd %s: %w", s.stream, err)
	}
	return nil
}
