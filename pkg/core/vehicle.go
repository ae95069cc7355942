// pkg/core/vehicle.go
package core

// Payload capability tags.
const (
	CapabilityGimbal = "gimbal"
	CapabilityCamera = "camera"
)

// FlightProfile is the nominal performance envelope of a vehicle.
// Airspeed is in m/s, MaxBankAngle in degrees.
type FlightProfile struct {
	Name         string  `cbor:"name" json:"name"`
	Airspeed     float64 `cbor:"airspeed" json:"airspeed"`
	MaxBankAngle float64 `cbor:"maxBankAngle" json:"maxBankAngle"`
}

// PayloadConfiguration describes one payload mounted on a vehicle.
type PayloadConfiguration struct {
	PayloadID  int64  `cbor:"payloadId" json:"payloadId"`
	Capability string `cbor:"capability" json:"capability"`
}

// VehicleConfiguration is the static description of a vehicle.
// A newer configuration for the same ID replaces the previous one wholesale.
type VehicleConfiguration struct {
	ID                   int64                  `cbor:"id" json:"id"`
	Label                string                 `cbor:"label" json:"label"`
	NominalFlightProfile *FlightProfile         `cbor:"nominalFlightProfile" json:"nominalFlightProfile"`
	Payloads             []PayloadConfiguration `cbor:"payloads" json:"payloads"`
}

// GimbalPayloads returns the payloads tagged with gimbal capability, in
// configuration order.
func (c *VehicleConfiguration) GimbalPayloads() []PayloadConfiguration {
	var out []PayloadConfiguration
	for _, p := range c.Payloads {
		if p.Capability == CapabilityGimbal {
			out = append(out, p)
		}
	}
	return out
}

// VehicleState is the latest telemetry for a vehicle. It may arrive before,
// or without, a matching VehicleConfiguration.
type VehicleState struct {
	ID          int64    `cbor:"id" json:"id"`
	Location    Location `cbor:"location" json:"location"`
	Groundspeed float64  `cbor:"groundspeed" json:"groundspeed"`
	Heading     float64  `cbor:"heading" json:"heading"`
	Time        int64    `cbor:"time" json:"time"` // scenario time, ms
}
