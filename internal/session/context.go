package session

import (
	"sync"

	"github.com/fleetsync/fleetsync/pkg/core"
)

// Context holds the session status most recently reported by the server.
type Context struct {
	mu     sync.RWMutex
	status core.SessionStatus
	seen   bool
	resets int
}

// NewContext creates a Context with no status received yet.
func NewContext() *Context {
	return &Context{}
}

// Status returns the last status and whether one has been received.
func (c *Context) Status() (core.SessionStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status, c.seen
}

// Update records status and reports whether it is a reset.
func (c *Context) Update(status core.SessionStatus) (reset bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
	c.seen = true
	if status.State == core.SessionReset {
		c.resets++
		return true
	}
	return false
}

// Resets returns how many reset events have been seen.
func (c *Context) Resets() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resets
}

// StateName returns the current state for logging, or "none".
func (c *Context) StateName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.seen {
		return "none"
	}
	return c.status.State.String()
}
