package wire

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/fleetsync/fleetsync/pkg/core"
)

// Message type constants matching the server protocol.
const (
	TypeVehicleConfiguration = "vehicle_configuration"
	TypeVehicleState         = "vehicle_state"
	TypeSessionStatus        = "session_status"
	TypePointSearchTask      = "point_search_task"
	TypeVehicleActionCommand = "vehicle_action_command"
)

// Envelope wraps every message on the stream. Each envelope is a single
// CBOR data item, which makes the stream self-delimiting.
type Envelope struct {
	Type    string          `cbor:"type"`
	Payload cbor.RawMessage `cbor:"payload"`
}

// Unknown is returned by the decoder for envelopes whose type is not
// registered. The payload is kept undecoded.
type Unknown struct {
	Type    string
	Payload cbor.RawMessage
}

// registry maps a message type to a constructor for its payload.
var registry = map[string]func() any{
	TypeVehicleConfiguration: func() any { return new(core.VehicleConfiguration) },
	TypeVehicleState:         func() any { return new(core.VehicleState) },
	TypeSessionStatus:        func() any { return new(core.SessionStatus) },
	TypePointSearchTask:      func() any { return new(core.PointSearchTask) },
	TypeVehicleActionCommand: func() any { return new(core.VehicleActionCommand) },
}

// TypeOf returns the wire type for a payload value. Both values and
// pointers of the core message types are accepted.
func TypeOf(msg any) (string, bool) {
	switch msg.(type) {
	case core.VehicleConfiguration, *core.VehicleConfiguration:
		return TypeVehicleConfiguration, true
	case core.VehicleState, *core.VehicleState:
		return TypeVehicleState, true
	case core.SessionStatus, *core.SessionStatus:
		return TypeSessionStatus, true
	case core.PointSearchTask, *core.PointSearchTask:
		return TypePointSearchTask, true
	case core.VehicleActionCommand, *core.VehicleActionCommand:
		return TypeVehicleActionCommand, true
	}
	return "", false
}
