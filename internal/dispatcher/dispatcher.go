package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrUnknownType is returned by Dispatch when no handler is registered
// for the event type.
var ErrUnknownType = errors.New("no handler for message type")

// Event is one decoded inbound message.
type Event struct {
	Type     string
	Message  any
	Received time.Time
}

// HandlerFunc processes an event.
type HandlerFunc func(Event) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	logged bool
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher routes events to registered handlers. Handlers run on the
// caller's goroutine, in the order events are dispatched.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   Logger

	// OTEL metrics
	processed metric.Int64Counter
	failed    metric.Int64Counter
	ignored   metric.Int64Counter
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}

	m := meter()

	var err error

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total events handled"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.failed, err = m.Int64Counter(
		"dispatcher.events.failed",
		metric.WithDescription("Total events whose handler returned an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	d.ignored, err = m.Int64Counter(
		"dispatcher.events.ignored",
		metric.WithDescription("Total events with no registered handler"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ignored counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given message type with optional configuration.
func (d *Dispatcher) Register(msgType string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h

	if cfg.logged {
		handler = d.withLogging(msgType, handler)
	}

	d.handlers[msgType] = handler
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(e Event) error {
	typeAttr := metric.WithAttributes(attribute.String("type", e.Type))

	h, ok := d.handlers[e.Type]
	if !ok {
		d.ignored.Add(context.Background(), 1, typeAttr)
		return fmt.Errorf("%w: %s", ErrUnknownType, e.Type)
	}

	if err := h(e); err != nil {
		d.failed.Add(context.Background(), 1, typeAttr)
		return err
	}
	d.processed.Add(context.Background(), 1, typeAttr)
	return nil
}

// HasHandler returns true if a handler is registered for the type.
func (d *Dispatcher) HasHandler(msgType string) bool {
	_, ok := d.handlers[msgType]
	return ok
}

func (d *Dispatcher) withLogging(msgType string, h HandlerFunc) HandlerFunc {
	return func(e Event) error {
		start := time.Now()
		d.logger.Debug("handling event", "type", msgType)

		err := h(e)

		if err != nil {
			d.logger.Error("event failed", "type", msgType, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "type", msgType, "duration", time.Since(start))
		}

		return err
	}
}
