// Package audit delivers security events to sinks off the request path.
// Delivery is best effort: a full buffer drops the event and a failing sink
// is logged, neither ever fails the operation that produced the event.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/authz-server/internal/logger"
	"github.com/dtroode/authz-server/internal/metrics"
	"github.com/dtroode/authz-server/internal/model"
)

// DefaultBufferSize is the number of events queued before new ones are dropped.
const DefaultBufferSize = 1024

// Sink persists audit events.
type Sink interface {
	Name() string
	Write(ctx context.Context, event model.AuditEvent) error
}

var _ model.AuditEmitter = (*Emitter)(nil)

// Emitter queues events and hands them to every sink from a single worker.
type Emitter struct {
	events  chan model.AuditEvent
	sinks   []Sink
	logger  *logger.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// Option customizes an Emitter.
type Option func(*Emitter)

// WithMetrics counts dropped events.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Emitter) {
		e.metrics = m
	}
}

// WithSinkTimeout bounds a single sink write.
func WithSinkTimeout(d time.Duration) Option {
	return func(e *Emitter) {
		e.timeout = d
	}
}

// WithClock replaces the time source used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(e *Emitter) {
		e.now = now
	}
}

// NewEmitter creates an emitter and starts its worker.
func NewEmitter(bufferSize int, logger *logger.Logger, sinks []Sink, opts ...Option) *Emitter {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	e := &Emitter{
		events:  make(chan model.AuditEvent, bufferSize),
		sinks:   sinks,
		logger:  logger,
		timeout: 5 * time.Second,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	go e.run()
	return e
}

// Emit enqueues event without waiting for delivery.
func (e *Emitter) Emit(_ context.Context, event model.AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now().UTC()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.drop(event, "emitter closed")
		return
	}

	select {
	case e.events <- event:
	default:
		e.drop(event, "buffer full")
	}
}

// Close stops accepting events and waits until queued events are delivered
// or ctx is done.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.events)
	}
	e.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Emitter) run() {
	defer close(e.done)
	for event := range e.events {
		for _, s := range e.sinks {
			e.write(s, event)
		}
	}
}

func (e *Emitter) write(s Sink, event model.AuditEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	if err := s.Write(ctx, event); err != nil {
		e.logger.Warn("Audit emitter: sink write failed",
			"sink", s.Name(),
			"event_id", event.ID,
			"type", event.Type,
			"error", err.Error())
	}
}

func (e *Emitter) drop(event model.AuditEvent, reason string) {
	e.metrics.AuditDropped()
	e.logger.Warn("Audit emitter: event dropped",
		"reason", reason,
		"event_id", event.ID,
		"type", event.Type)
}
