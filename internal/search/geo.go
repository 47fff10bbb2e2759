package search

import (
	"math"

	"github.com/hyperjump/contentindex/internal/gateway"
	"github.com/hyperjump/contentindex/internal/models"
)

// EarthRadiusMeters is the mean radius of Earth used for Haversine distance.
const EarthRadiusMeters = 6_371_000.0

// Haversine returns the great-circle distance in meters between two points.
func Haversine(a, b models.GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// BoundingBox returns a latitude/longitude rectangle containing every point within
// radius meters of center. It is a superset; callers filter exactly with Haversine.
// Boxes reaching a pole or crossing the antimeridian widen to all longitudes.
func BoundingBox(field string, center models.GeoPoint, radius float64) *gateway.GeoBox {
	dLat := radius / EarthRadiusMeters * 180 / math.Pi
	box := &gateway.GeoBox{
		Field:  field,
		MinLat: center.Lat - dLat,
		MaxLat: center.Lat + dLat,
		MinLon: -180,
		MaxLon: 180,
	}
	if box.MinLat <= -90 || box.MaxLat >= 90 {
		box.MinLat = math.Max(box.MinLat, -90)
		box.MaxLat = math.Min(box.MaxLat, 90)
		return box
	}

	// Widest longitude span is at the latitude farthest from the equator.
	maxAbsLat := math.Max(math.Abs(box.MinLat), math.Abs(box.MaxLat)) * math.Pi / 180
	dLon := dLat / math.Cos(maxAbsLat)
	if center.Lon-dLon < -180 || center.Lon+dLon > 180 {
		return box
	}
	box.MinLon = center.Lon - dLon
	box.MaxLon = center.Lon + dLon
	return box
}
