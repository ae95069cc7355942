package client

import (
	"fmt"

	"github.com/fleetsync/fleetsync/internal/dispatcher"
	"github.com/fleetsync/fleetsync/pkg/core"
	"github.com/fleetsync/fleetsync/pkg/wire"
)

// RegisterHandlers registers the inbound message handlers with d.
func (c *Client) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Fleet model updates
	d.Register(wire.TypeVehicleConfiguration, c.handleConfiguration, dispatcher.Logged())
	d.Register(wire.TypeVehicleState, c.handleState, dispatcher.Logged())

	// Session control
	d.Register(wire.TypeSessionStatus, c.handleSessionStatus, dispatcher.Logged())

	// Tasking
	d.Register(wire.TypePointSearchTask, c.handleTask, dispatcher.Logged())
}

func (c *Client) handleConfiguration(e dispatcher.Event) error {
	cfg, ok := e.Message.(*core.VehicleConfiguration)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", e.Message, e.Type)
	}
	c.deps.Store.UpsertConfiguration(*cfg)
	return nil
}

func (c *Client) handleState(e dispatcher.Event) error {
	st, ok := e.Message.(*core.VehicleState)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", e.Message, e.Type)
	}
	c.deps.Store.UpsertState(*st)
	return nil
}

func (c *Client) handleSessionStatus(e dispatcher.Event) error {
	status, ok := e.Message.(*core.SessionStatus)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", e.Message, e.Type)
	}
	if c.deps.Session.Update(*status) {
		c.deps.Store.Reset()
		c.deps.Logger.Info("Session reset, fleet cleared", "scenarioTime", status.ScenarioTime)
	}
	return nil
}

func (c *Client) handleTask(e dispatcher.Event) error {
	task, ok := e.Message.(*core.PointSearchTask)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", e.Message, e.Type)
	}
	c.Allocate(*task)
	return nil
}
