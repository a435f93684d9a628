// Package messaging carries domain events between the engine's pipelines:
// the refresh and evaluation handlers publish, the dispatcher routes to
// registered consumers such as the leaderboard projection. Everything is
// in-process; durability is explicitly out of scope, a lost event costs one
// notification, never a score.
package messaging

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sam399/gamehub-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus fans events out to subscribers on a bounded worker pool.
// Publish never blocks on a slow handler and never reports handler errors to
// the publisher: a refresh must not fail because a projection hiccuped.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	subscribers map[shared.EventType][]shared.EventHandler
	wildcard    []shared.EventHandler
	closed      bool

	workers chan struct{}
	wg      sync.WaitGroup

	logger  *slog.Logger
	metrics *EventBusMetrics
}

// InMemoryEventBusConfig configures the bus.
type InMemoryEventBusConfig struct {
	// Workers caps concurrently running handlers across all event types.
	Workers int

	// Logger for handler failures and panics.
	Logger *slog.Logger
}

// DefaultInMemoryEventBusConfig returns sensible defaults.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		Workers: 8,
		Logger:  slog.Default(),
	}
}

// NewInMemoryEventBus creates the bus.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Workers <= 0 {
		config.Workers = 8
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &InMemoryEventBus{
		subscribers: make(map[shared.EventType][]shared.EventHandler),
		workers:     make(chan struct{}, config.Workers),
		logger:      config.Logger,
		metrics:     NewEventBusMetrics(),
	}
}

// Subscribe registers a handler for one event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
	return nil
}

// SubscribeAll registers a handler for every event type.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	b.wildcard = append(b.wildcard, handler)
	return nil
}

// Publish delivers the event to every matching subscriber asynchronously.
// An event with no subscribers is dropped silently.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	handlers := make([]shared.EventHandler, 0, len(b.subscribers[event.EventType()])+len(b.wildcard))
	handlers = append(handlers, b.subscribers[event.EventType()]...)
	handlers = append(handlers, b.wildcard...)
	b.mu.RUnlock()

	b.metrics.RecordPublish(event.EventType())

	for _, handler := range handlers {
		b.wg.Add(1)
		go b.run(event, handler)
	}
	return nil
}

// run executes one handler on the worker pool, containing panics.
func (b *InMemoryEventBus) run(event shared.Event, handler shared.EventHandler) {
	defer b.wg.Done()

	b.workers <- struct{}{}
	defer func() { <-b.workers }()

	startedAt := time.Now()
	defer func() {
		if r := recover(); r != nil {
			b.metrics.RecordHandled(event.EventType(), time.Since(startedAt), false)
			b.logger.Error("event handler panicked",
				"event_type", string(event.EventType()),
				"aggregate_id", event.AggregateID(),
				"panic", fmt.Sprintf("%v", r),
			)
		}
	}()

	err := handler(event)
	b.metrics.RecordHandled(event.EventType(), time.Since(startedAt), err == nil)
	if err != nil {
		b.logger.Warn("event handler failed",
			"event_type", string(event.EventType()),
			"aggregate_id", event.AggregateID(),
			"error", err,
		)
	}
}

// Close rejects further publishes and waits for in-flight handlers.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

// Metrics returns the bus metrics tracker.
func (b *InMemoryEventBus) Metrics() *EventBusMetrics {
	return b.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// EventBusMetrics tracks publish and handler counts per event type.
type EventBusMetrics struct {
	mu sync.RWMutex

	published map[shared.EventType]int64
	handled   map[shared.EventType]int64
	failures  map[shared.EventType]int64
	duration  time.Duration
}

// NewEventBusMetrics creates a metrics tracker.
func NewEventBusMetrics() *EventBusMetrics {
	return &EventBusMetrics{
		published: make(map[shared.EventType]int64),
		handled:   make(map[shared.EventType]int64),
		failures:  make(map[shared.EventType]int64),
	}
}

// RecordPublish counts one published event.
func (m *EventBusMetrics) RecordPublish(eventType shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[eventType]++
}

// RecordHandled counts one handler execution.
func (m *EventBusMetrics) RecordHandled(eventType shared.EventType, d time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handled[eventType]++
	m.duration += d
	if !success {
		m.failures[eventType]++
	}
}

// Snapshot returns point-in-time totals.
func (m *EventBusMetrics) Snapshot() EventBusMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := EventBusMetricsSnapshot{}
	for _, n := range m.published {
		snap.Published += n
	}
	for _, n := range m.handled {
		snap.Handled += n
	}
	for _, n := range m.failures {
		snap.Failures += n
	}
	if snap.Handled > 0 {
		snap.AverageDuration = m.duration / time.Duration(snap.Handled)
	}
	return snap
}

// EventBusMetricsSnapshot is a point-in-time snapshot of bus metrics.
type EventBusMetricsSnapshot struct {
	Published       int64
	Handled         int64
	Failures        int64
	AverageDuration time.Duration
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEventBusClosed is returned when using a closed bus.
	ErrEventBusClosed = fmt.Errorf("event bus is closed")

	// ErrNilEvent is returned when publishing a nil event.
	ErrNilEvent = fmt.Errorf("event cannot be nil")

	// ErrNilHandler is returned when subscribing a nil handler.
	ErrNilHandler = fmt.Errorf("handler cannot be nil")
)
