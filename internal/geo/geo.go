package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/fleetsync/fleetsync/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle math.
const EarthRadiusMeters float64 = 6371000

// ErrInvalidRadius is returned when a footprint is requested for a
// non-positive or non-finite radius.
var ErrInvalidRadius = errors.New("invalid radius")

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }
func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }

// Distance returns the great-circle distance in meters between a and b.
// Altitude is ignored.
func Distance(a, b core.Location) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := lat2 - lat1
	dLon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// rounding can push h just past 1 near the antipode
	h = math.Min(1, math.Max(0, h))
	c := 2 * math.Asin(math.Sqrt(h))

	return EarthRadiusMeters * c
}

// Bearing returns the initial bearing from a to b in degrees, [0, 360).
func Bearing(a, b core.Location) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	return math.Mod(toDegrees(math.Atan2(y, x))+360, 360)
}

// Destination projects a point distance meters from origin along bearing
// (degrees). The origin altitude is kept.
func Destination(origin core.Location, bearing, distance float64) core.Location {
	lat1 := toRadians(origin.Latitude)
	lon1 := toRadians(origin.Longitude)
	brng := toRadians(bearing)
	d := distance / EarthRadiusMeters

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(
		math.Sin(brng)*math.Sin(d)*math.Cos(lat1),
		math.Cos(d)-math.Sin(lat1)*math.Sin(lat2),
	)

	return core.Location{
		Latitude:  toDegrees(lat2),
		Longitude: math.Mod(toDegrees(lon2)+540, 360) - 180,
		Altitude:  origin.Altitude,
	}
}

// WebMercator converts a WGS84 location to EPSG:3857 x/y meters.
func WebMercator(loc core.Location) (x, y float64) {
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ = f(loc.Longitude, loc.Latitude, 0)
	return x, y
}

// LoiterFootprint approximates the loiter circle around center as a closed
// polygon with the given number of vertices, in EPSG:3857.
func LoiterFootprint(center core.Location, radius float64, segments int) (geom.Polygon, error) {
	if radius <= 0 || math.IsInf(radius, 0) || math.IsNaN(radius) {
		return geom.Polygon{}, fmt.Errorf("%w: %f", ErrInvalidRadius, radius)
	}
	if segments < 3 {
		segments = 3
	}

	flat := make([]float64, 0, (segments+1)*2)
	for i := 0; i < segments; i++ {
		p := Destination(center, float64(i)*360/float64(segments), radius)
		x, y := WebMercator(p)
		flat = append(flat, x, y)
	}
	// close the ring
	flat = append(flat, flat[0], flat[1])

	ring, err := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	if err != nil {
		return geom.Polygon{}, fmt.Errorf("invalid loiter ring: %w", err)
	}
	poly, err := geom.NewPolygon([]geom.LineString{ring})
	if err != nil {
		return geom.Polygon{}, fmt.Errorf("invalid loiter footprint: %w", err)
	}
	return poly, nil
}
