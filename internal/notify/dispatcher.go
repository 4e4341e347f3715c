package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	BufferSize int
	// SendTimeout bounds a single Sink.Emit call.
	SendTimeout time.Duration
}

// Dispatcher asynchronously forwards events to a sink. A nil *Dispatcher is a
// valid no-op.
type Dispatcher struct {
	cfg     Config
	sink    Sink
	logger  *slog.Logger
	ch      chan Event
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64
	failed  atomic.Uint64

	// mu orders Emit's send against Close so nothing is queued after run exits.
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the delivery goroutine.
func NewDispatcher(cfg Config, sink Sink, logger *slog.Logger) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		ch:     make(chan Event, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	if err := d.sink.Emit(ctx, event); err != nil {
		d.failed.Add(1)
		d.logger.Warn("notification delivery failed",
			slog.String("kind", string(event.Kind)),
			slog.Int64("member_id", event.MemberID),
			slog.Any("error", err),
		)
	}
}

// Emit queues event without blocking. Events are dropped when the buffer is
// full or the dispatcher is closed.
func (d *Dispatcher) Emit(event Event) {
	if d == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return
	}

	select {
	case d.ch <- event:
	default:
		d.dropped.Add(1)
	}
}

// Close stops accepting events and drains the buffer.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.done)
	d.mu.Unlock()

	d.wg.Wait()
}

// Dropped returns the number of events discarded because the buffer was full
// or the dispatcher was closed.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Failed returns the number of events the sink rejected.
func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}

// Collectors exposes the drop and failure counts to Prometheus.
func (d *Dispatcher) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "edge_notify_dropped_total",
			Help: "Notifications dropped due to dispatcher backpressure.",
		}, func() float64 { return float64(d.Dropped()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "edge_notify_failed_total",
			Help: "Notifications rejected by the sink.",
		}, func() float64 { return float64(d.Failed()) }),
	}
}
