// pkg/core/command.go
package core

// IndefiniteDuration marks an action that holds until superseded.
const IndefiniteDuration int64 = -1

// LoiterDirection is the turn direction of a loiter.
type LoiterDirection string

const LoiterCounterClockwise LoiterDirection = "counter_clockwise"

// LoiterType is the shape of a loiter.
type LoiterType string

const LoiterCircular LoiterType = "circular"

// LoiterAction holds a vehicle on a closed pattern around Location.
type LoiterAction struct {
	Location  Location        `cbor:"location" json:"location"`
	Radius    float64         `cbor:"radius" json:"radius"`
	Direction LoiterDirection `cbor:"direction" json:"direction"`
	Type      LoiterType      `cbor:"type" json:"type"`
	Airspeed  float64         `cbor:"airspeed" json:"airspeed"`
	Duration  int64           `cbor:"duration" json:"duration"` // ms
}

// GimbalStareAction points a gimbal payload at a fixed point.
type GimbalStareAction struct {
	PayloadID  int64    `cbor:"payloadId" json:"payloadId"`
	Starepoint Location `cbor:"starepoint" json:"starepoint"`
	Duration   int64    `cbor:"duration" json:"duration"` // ms
}

// VehicleActionCommand is addressed to a single vehicle. Loiter is always
// set; there is one stare action per gimbal on the vehicle.
type VehicleActionCommand struct {
	CommandID      int64               `cbor:"commandId" json:"commandId"`
	VehicleID      int64               `cbor:"vehicleId" json:"vehicleId"`
	AssociatedTask int64               `cbor:"associatedTask" json:"associatedTask"`
	Loiter         LoiterAction        `cbor:"loiter" json:"loiter"`
	GimbalStares   []GimbalStareAction `cbor:"gimbalStares" json:"gimbalStares"`
}
