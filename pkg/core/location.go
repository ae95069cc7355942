// pkg/core/location.go
package core

// Location is a geographic position. Latitude and Longitude are in
// degrees (WGS84), Altitude in meters.
type Location struct {
	Latitude  float64 `cbor:"latitude" json:"latitude"`
	Longitude float64 `cbor:"longitude" json:"longitude"`
	Altitude  float64 `cbor:"altitude" json:"altitude"`
}

// WithAltitude returns a copy of l at the given altitude.
func (l Location) WithAltitude(alt float64) Location {
	l.Altitude = alt
	return l
}
