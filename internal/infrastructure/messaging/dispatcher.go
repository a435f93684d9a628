package messaging

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/sam399/gamehub-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

// Dispatcher routes bus events to named consumers. It subscribes once to the
// whole bus and runs every registered consumer of an event's type through
// the middleware chain, retrying transient failures with backoff. Consumers
// are registered before Start; registration after Start is rejected so the
// set of consumers is fixed while events are flowing.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[shared.EventType][]registration
	started  bool

	middleware []Middleware

	config  DispatcherConfig
	metrics *DispatcherMetrics
}

// registration is one named consumer of an event type.
type registration struct {
	name    string
	handler shared.EventHandler
}

// DispatcherConfig configures the dispatcher.
type DispatcherConfig struct {
	// EventBus is the bus the dispatcher consumes from.
	EventBus shared.EventBus

	// Logger for retry and failure reporting.
	Logger *slog.Logger

	// Retry governs redelivery to a failing consumer.
	Retry RetryConfig
}

// RetryConfig holds the redelivery policy.
type RetryConfig struct {
	// MaxAttempts counts the first delivery too.
	MaxAttempts int

	// InitialBackoff doubles per attempt up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns the default redelivery policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

// DefaultDispatcherConfig returns sensible defaults on the given bus.
func DefaultDispatcherConfig(eventBus shared.EventBus) DispatcherConfig {
	return DispatcherConfig{
		EventBus: eventBus,
		Logger:   slog.Default(),
		Retry:    DefaultRetryConfig(),
	}
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(config DispatcherConfig) *Dispatcher {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry = DefaultRetryConfig()
	}
	return &Dispatcher{
		handlers: make(map[shared.EventType][]registration),
		config:   config,
		metrics:  NewDispatcherMetrics(),
	}
}

// Register adds a named consumer for one event type.
func (d *Dispatcher) Register(eventType shared.EventType, name string, handler shared.EventHandler) error {
	if handler == nil {
		return ErrNilHandler
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return ErrDispatcherStarted
	}
	for _, reg := range d.handlers[eventType] {
		if reg.name == name {
			return fmt.Errorf("%w: %s/%s", ErrDuplicateHandler, eventType, name)
		}
	}
	d.handlers[eventType] = append(d.handlers[eventType], registration{name: name, handler: handler})
	return nil
}

// Use appends a middleware. Middlewares wrap every consumer in registration
// order, the first Use being the outermost.
func (d *Dispatcher) Use(middleware Middleware) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.middleware = append(d.middleware, middleware)
}

// Start subscribes the dispatcher to the bus.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return ErrDispatcherStarted
	}
	d.started = true
	d.mu.Unlock()

	return d.config.EventBus.SubscribeAll(d.dispatch)
}

// Stop marks the dispatcher stopped. In-flight deliveries drain with the
// bus's Close; there is nothing to unsubscribe in-process.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = false
	return nil
}

// Metrics returns the dispatcher metrics tracker.
func (d *Dispatcher) Metrics() *DispatcherMetrics {
	return d.metrics
}

// dispatch delivers one event to its registered consumers. It runs on the
// bus's worker pool; consumers of one event execute sequentially so a
// projection sees its own writes.
func (d *Dispatcher) dispatch(event shared.Event) error {
	d.mu.RLock()
	regs := make([]registration, len(d.handlers[event.EventType()]))
	copy(regs, d.handlers[event.EventType()])
	chain := make([]Middleware, len(d.middleware))
	copy(chain, d.middleware)
	d.mu.RUnlock()

	if len(regs) == 0 {
		return nil
	}
	d.metrics.RecordDispatch(event.EventType())

	var firstErr error
	for _, reg := range regs {
		if err := d.deliver(event, reg, chain); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// deliver runs one consumer with the middleware chain and retries.
func (d *Dispatcher) deliver(event shared.Event, reg registration, chain []Middleware) error {
	handler := reg.handler
	for i := len(chain) - 1; i >= 0; i-- {
		handler = chain[i](handler)
	}

	var lastErr error
	for attempt := 1; attempt <= d.config.Retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(d.backoff(attempt))
			d.metrics.RecordRetry(event.EventType())
		}

		lastErr = handler(event)
		if lastErr == nil {
			return nil
		}

		d.config.Logger.Warn("event delivery failed",
			"event_type", string(event.EventType()),
			"handler", reg.name,
			"attempt", attempt,
			"error", lastErr,
		)
	}

	d.metrics.RecordFailure(event.EventType())
	d.config.Logger.Error("event delivery abandoned",
		"event_type", string(event.EventType()),
		"handler", reg.name,
		"attempts", d.config.Retry.MaxAttempts,
		"error", lastErr,
	)
	return lastErr
}

// backoff doubles per attempt, capped at MaxBackoff.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	b := float64(d.config.Retry.InitialBackoff) * math.Pow(2, float64(attempt-2))
	if b > float64(d.config.Retry.MaxBackoff) {
		b = float64(d.config.Retry.MaxBackoff)
	}
	return time.Duration(b)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// Middleware wraps an event handler.
type Middleware func(shared.EventHandler) shared.EventHandler

// RecoveryMiddleware converts a consumer panic into an error.
func RecoveryMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("event consumer panicked",
						"event_type", string(event.EventType()),
						"panic", fmt.Sprintf("%v", r),
					)
					err = fmt.Errorf("consumer panic: %v", r)
				}
			}()
			return next(event)
		}
	}
}

// LoggingMiddleware logs each delivery with its duration.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			startedAt := time.Now()
			err := next(event)
			if err != nil {
				logger.Warn("event handled with error",
					"event_type", string(event.EventType()),
					"duration", time.Since(startedAt).String(),
					"error", err,
				)
				return err
			}
			logger.Debug("event handled",
				"event_type", string(event.EventType()),
				"duration", time.Since(startedAt).String(),
			)
			return nil
		}
	}
}

// MetricsMiddleware records per-delivery outcomes.
func MetricsMiddleware(metrics *DispatcherMetrics) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			startedAt := time.Now()
			err := next(event)
			metrics.RecordExecution(event.EventType(), time.Since(startedAt), err == nil)
			return err
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// DispatcherMetrics tracks delivery counts per event type.
type DispatcherMetrics struct {
	mu sync.RWMutex

	dispatched map[shared.EventType]int64
	executed   map[shared.EventType]int64
	failed     map[shared.EventType]int64
	retried    map[shared.EventType]int64
	duration   time.Duration
}

// NewDispatcherMetrics creates a metrics tracker.
func NewDispatcherMetrics() *DispatcherMetrics {
	return &DispatcherMetrics{
		dispatched: make(map[shared.EventType]int64),
		executed:   make(map[shared.EventType]int64),
		failed:     make(map[shared.EventType]int64),
		retried:    make(map[shared.EventType]int64),
	}
}

// RecordDispatch counts one routed event.
func (m *DispatcherMetrics) RecordDispatch(eventType shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatched[eventType]++
}

// RecordExecution counts one consumer execution.
func (m *DispatcherMetrics) RecordExecution(eventType shared.EventType, d time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executed[eventType]++
	m.duration += d
	if !success {
		m.failed[eventType]++
	}
}

// RecordRetry counts one redelivery attempt.
func (m *DispatcherMetrics) RecordRetry(eventType shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retried[eventType]++
}

// RecordFailure counts one abandoned delivery.
func (m *DispatcherMetrics) RecordFailure(eventType shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[eventType]++
}

// Snapshot returns point-in-time totals.
func (m *DispatcherMetrics) Snapshot() DispatcherMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := DispatcherMetricsSnapshot{}
	for _, n := range m.dispatched {
		snap.Dispatched += n
	}
	for _, n := range m.executed {
		snap.Executed += n
	}
	for _, n := range m.failed {
		snap.Failed += n
	}
	for _, n := range m.retried {
		snap.Retried += n
	}
	if snap.Executed > 0 {
		snap.AverageDuration = m.duration / time.Duration(snap.Executed)
	}
	return snap
}

// DispatcherMetricsSnapshot is a point-in-time snapshot.
type DispatcherMetricsSnapshot struct {
	Dispatched      int64
	Executed        int64
	Failed          int64
	Retried         int64
	AverageDuration time.Duration
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrDispatcherStarted is returned on Register or Start after Start.
	ErrDispatcherStarted = fmt.Errorf("dispatcher is already started")

	// ErrDuplicateHandler is returned when a consumer name is taken.
	ErrDuplicateHandler = fmt.Errorf("handler already registered")
)
