package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fleetsync/fleetsync/pkg/core"
)

func TestContext_Initial(t *testing.T) {
	c := NewContext()

	_, ok := c.Status()
	assert.False(t, ok)
	assert.Equal(t, "none", c.StateName())
	assert.Zero(t, c.Resets())
}

func TestContext_Update(t *testing.T) {
	c := NewContext()

	assert.False(t, c.Update(core.SessionStatus{State: core.SessionRunning, ScenarioTime: 1000}))
	assert.False(t, c.Update(core.SessionStatus{State: core.SessionPaused, ScenarioTime: 2000}))

	st, ok := c.Status()
	assert.True(t, ok)
	assert.Equal(t, core.SessionPaused, st.State)
	assert.Equal(t, int64(2000), st.ScenarioTime)
	assert.Equal(t, "paused", c.StateName())

	assert.True(t, c.Update(core.SessionStatus{State: core.SessionReset}))
	assert.True(t, c.Update(core.SessionStatus{State: core.SessionReset}))
	assert.Equal(t, 2, c.Resets())
	assert.Equal(t, "reset", c.StateName())
}
