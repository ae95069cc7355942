// Package connection owns the stream to the server: connect with retry,
// the receive loop, and serialized outbound writes.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/fleetsync/fleetsync/pkg/wire"
)

const (
	DefaultRetryInterval = 2 * time.Second
	DefaultWriteTimeout  = 10 * time.Second

	instrumentationName = "github.com/fleetsync/fleetsync/internal/connection"
)

var (
	// ErrClosed is returned by Connect once the manager has been closed or
	// its receive loop has failed.
	ErrClosed = errors.New("connection closed")
	// ErrAlreadyConnected is returned by a second Connect call.
	ErrAlreadyConnected = errors.New("already connected")
)

// State of the connection.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Handler receives every decoded inbound message on the receive loop
// goroutine.
type Handler func(msg any)

// Config holds connection settings.
type Config struct {
	Address       string // host:port
	RetryInterval time.Duration
	WriteTimeout  time.Duration
}

// Manager manages the server connection. The receive loop is the only
// reader; writes are serialized so each message goes out whole.
type Manager struct {
	cfg    Config
	dialer Dialer
	logger *slog.Logger

	state atomic.Int32

	mu        sync.Mutex
	transport Transport
	started   bool
	closed    bool
	err       error

	writeMu sync.Mutex

	done     chan struct{}
	doneOnce sync.Once

	received     metric.Int64Counter
	sent         metric.Int64Counter
	sendFailures metric.Int64Counter
	dialFailures metric.Int64Counter
}

// New creates a Manager. Zero durations in cfg fall back to the defaults.
func New(cfg Config, dialer Dialer, logger *slog.Logger) (*Manager, error) {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	m := &Manager{
		cfg:    cfg,
		dialer: dialer,
		logger: logger,
		done:   make(chan struct{}),
	}

	meter := otel.Meter(instrumentationName)

	var err error
	m.received, err = meter.Int64Counter("connection.messages.received",
		metric.WithDescription("Messages decoded from the stream"))
	if err != nil {
		return nil, fmt.Errorf("creating received counter: %w", err)
	}
	m.sent, err = meter.Int64Counter("connection.messages.sent",
		metric.WithDescription("Messages written to the stream"))
	if err != nil {
		return nil, fmt.Errorf("creating sent counter: %w", err)
	}
	m.sendFailures, err = meter.Int64Counter("connection.send.failures",
		metric.WithDescription("Messages that could not be encoded or written"))
	if err != nil {
		return nil, fmt.Errorf("creating send failures counter: %w", err)
	}
	m.dialFailures, err = meter.Int64Counter("connection.dial.failures",
		metric.WithDescription("Failed connection attempts"))
	if err != nil {
		return nil, fmt.Errorf("creating dial failures counter: %w", err)
	}

	return m, nil
}

// State returns the current connection state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Done is closed when the receive loop has terminated, or when the manager
// is closed before ever connecting.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Err returns the error that terminated the receive loop, if any.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Connect blocks until a connection is established, retrying every
// RetryInterval on failure, then starts the receive loop and returns.
// It only fails when ctx is cancelled or the manager is closed, including
// a Close while it is still retrying.
func (m *Manager) Connect(ctx context.Context, handle Handler) error {
	m.mu.Lock()
	switch {
	case m.closed, m.started && m.State() == Disconnected:
		m.mu.Unlock()
		return ErrClosed
	case m.started || m.State() != Disconnected:
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	m.state.Store(int32(Connecting))
	m.mu.Unlock()

	var t Transport
	for attempt := 1; ; attempt++ {
		if m.isClosed() {
			m.state.Store(int32(Disconnected))
			return ErrClosed
		}

		var err error
		t, err = m.dialer.Dial(ctx, m.cfg.Address)
		if err == nil {
			break
		}

		m.dialFailures.Add(context.Background(), 1)
		m.logger.Warn("Connect failed, retrying",
			"address", m.cfg.Address,
			"attempt", attempt,
			"retryIn", m.cfg.RetryInterval,
			"error", err,
		)

		timer := time.NewTimer(m.cfg.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.state.Store(int32(Disconnected))
			return ctx.Err()
		case <-m.done:
			// Close during the retry phase
			timer.Stop()
			m.state.Store(int32(Disconnected))
			return ErrClosed
		case <-timer.C:
		}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = t.Close()
		m.state.Store(int32(Disconnected))
		return ErrClosed
	}
	m.transport = t
	m.started = true
	m.state.Store(int32(Connected))
	m.mu.Unlock()

	m.logger.Info("Connected", "address", m.cfg.Address)

	go m.receiveLoop(t, handle)

	return nil
}

// receiveLoop decodes messages and hands each to handle until the stream
// fails or the manager is closed. Any failure ends the client; there is
// no reconnect from here.
func (m *Manager) receiveLoop(t Transport, handle Handler) {
	dec := wire.NewDecoder(t)

	var loopErr error
	for {
		msg, err := dec.Decode()
		if err != nil {
			if m.isClosed() {
				m.logger.Debug("Receive loop stopped")
			} else {
				loopErr = fmt.Errorf("receive: %w", err)
				m.logger.Error("Receive loop failed, connection is terminated", "error", err)
			}
			break
		}
		m.received.Add(context.Background(), 1)
		handle(msg)
	}

	m.mu.Lock()
	m.err = loopErr
	m.transport = nil
	m.mu.Unlock()

	m.writeMu.Lock()
	_ = t.Close()
	m.writeMu.Unlock()

	m.state.Store(int32(Disconnected))
	m.doneOnce.Do(func() { close(m.done) })
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Send encodes msg and writes it as one message. Errors are logged and
// counted, never returned.
func (m *Manager) Send(msg any) {
	if err := m.write(msg); err != nil {
		m.sendFailures.Add(context.Background(), 1)
		m.logger.Error("Send failed", "type", fmt.Sprintf("%T", msg), "error", err)
		return
	}
	m.sent.Add(context.Background(), 1)
}

func (m *Manager) write(msg any) error {
	data, err := wire.Marshal(msg)
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	t := m.transport
	m.mu.Unlock()
	if t == nil {
		return errors.New("not connected")
	}

	if err := t.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := t.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Close stops the receive loop and closes the transport.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	t := m.transport
	started := m.started
	m.mu.Unlock()

	if !started {
		m.doneOnce.Do(func() { close(m.done) })
		return nil
	}

	if t == nil {
		return nil
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return t.Close()
}
