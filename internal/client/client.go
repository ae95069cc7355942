// Package client ties the connection, fleet store, dispatcher and
// allocator together into the fleet synchronization client.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fleetsync/fleetsync/internal/allocator"
	"github.com/fleetsync/fleetsync/internal/command"
	"github.com/fleetsync/fleetsync/internal/connection"
	"github.com/fleetsync/fleetsync/internal/dispatcher"
	"github.com/fleetsync/fleetsync/internal/fleet"
	"github.com/fleetsync/fleetsync/internal/session"
	"github.com/fleetsync/fleetsync/pkg/core"
	"github.com/fleetsync/fleetsync/pkg/wire"
)

// Config holds client connection settings.
type Config struct {
	Address       string
	RetryInterval time.Duration
	WriteTimeout  time.Duration
}

// Dependencies holds the collaborators of the client. Only Dialer is
// required.
type Dependencies struct {
	Dialer    connection.Dialer
	Logger    *slog.Logger
	Store     *fleet.Store
	Session   *session.Context
	Reporter  allocator.Reporter
	Footprint command.FootprintSink
}

// Client is a single connection to the simulation server. All inbound
// messages, including allocation, are handled on the receive loop.
type Client struct {
	deps       Dependencies
	conn       *connection.Manager
	dispatcher *dispatcher.Dispatcher
	allocator  *allocator.Allocator
}

// New builds a Client. Nothing is dialed until Run or Start.
func New(cfg Config, deps Dependencies) (*Client, error) {
	if deps.Dialer == nil {
		return nil, errors.New("client: dialer is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Store == nil {
		deps.Store = fleet.NewStore()
	}
	if deps.Session == nil {
		deps.Session = session.NewContext()
	}

	conn, err := connection.New(connection.Config{
		Address:       cfg.Address,
		RetryInterval: cfg.RetryInterval,
		WriteTimeout:  cfg.WriteTimeout,
	}, deps.Dialer, deps.Logger.With("component", "connection"))
	if err != nil {
		return nil, fmt.Errorf("creating connection manager: %w", err)
	}

	d, err := dispatcher.New(deps.Logger.With("component", "dispatcher"))
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	var synthOpts []command.Option
	if deps.Footprint != nil {
		synthOpts = append(synthOpts, command.WithFootprintSink(deps.Footprint))
	}

	alloc, err := allocator.New(allocator.Dependencies{
		Synthesizer: command.NewSynthesizer(deps.Logger.With("component", "command"), synthOpts...),
		Sender:      conn,
		Reporter:    deps.Reporter,
		Logger:      deps.Logger.With("component", "allocator"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating allocator: %w", err)
	}

	c := &Client{
		deps:       deps,
		conn:       conn,
		dispatcher: d,
		allocator:  alloc,
	}
	c.RegisterHandlers(d)

	return c, nil
}

// Start connects, retrying until it succeeds or ctx is cancelled, and
// starts the receive loop.
func (c *Client) Start(ctx context.Context) error {
	return c.conn.Connect(ctx, c.handleMessage)
}

// Run starts the client and blocks until ctx is cancelled or the receive
// loop terminates. A receive failure is returned as an error.
func (c *Client) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		c.deps.Logger.Info("Shutting down client")
		if err := c.Close(); err != nil {
			c.deps.Logger.Warn("Error closing connection", "error", err)
		}
		<-c.conn.Done()
		return nil
	case <-c.conn.Done():
		return c.conn.Err()
	}
}

// Send writes msg to the server from the caller's goroutine. Errors are
// logged.
func (c *Client) Send(msg any) {
	c.conn.Send(msg)
}

// Allocate assigns task against a snapshot of the current fleet.
func (c *Client) Allocate(task core.PointSearchTask) bool {
	return c.allocator.Allocate(task, c.deps.Store.Snapshot())
}

// Close stops the receive loop and closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Done is closed when the client has stopped receiving.
func (c *Client) Done() <-chan struct{} {
	return c.conn.Done()
}

// Store returns the fleet store.
func (c *Client) Store() *fleet.Store {
	return c.deps.Store
}

// Session returns the session context.
func (c *Client) Session() *session.Context {
	return c.deps.Session
}

// State returns the connection state.
func (c *Client) State() connection.State {
	return c.conn.State()
}

// handleMessage runs on the receive loop.
func (c *Client) handleMessage(msg any) {
	e := dispatcher.Event{Message: msg, Received: time.Now()}
	if u, ok := msg.(*wire.Unknown); ok {
		e.Type = u.Type
	} else if t, ok := wire.TypeOf(msg); ok {
		e.Type = t
	}

	err := c.dispatcher.Dispatch(e)
	switch {
	case err == nil:
	case errors.Is(err, dispatcher.ErrUnknownType):
		c.deps.Logger.Debug("Ignoring message", "type", e.Type)
	default:
		c.deps.Logger.Warn("Message handling failed", "type", e.Type, "error", err)
	}
}
