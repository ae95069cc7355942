// pkg/core/task.go
package core

// PointSearchTask asks for a vehicle to search around a single point.
type PointSearchTask struct {
	TaskID         int64    `cbor:"taskId" json:"taskId"`
	Label          string   `cbor:"label" json:"label"`
	SearchLocation Location `cbor:"searchLocation" json:"searchLocation"`
}

// SessionState is the discrete simulation state reported by the server.
type SessionState int

const (
	SessionRunning SessionState = iota
	SessionPaused
	SessionStopped
	SessionReset
)

func (s SessionState) String() string {
	switch s {
	case SessionRunning:
		return "running"
	case SessionPaused:
		return "paused"
	case SessionStopped:
		return "stopped"
	case SessionReset:
		return "reset"
	default:
		return "unknown"
	}
}

// SessionStatus is a status event from the server.
type SessionStatus struct {
	State        SessionState `cbor:"state" json:"state"`
	ScenarioTime int64        `cbor:"scenarioTime" json:"scenarioTime"` // ms
	RealTimeMult float64      `cbor:"realTimeMultiple" json:"realTimeMultiple"`
}
