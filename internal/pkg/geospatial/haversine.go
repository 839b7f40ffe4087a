package geospatial

import (
	"math"

	"github.com/mzabaleta/routefit/internal/core/domain"
)

const earthRadiusKm = 6371.0

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c * 1000 // meters
}

// Distance is Haversine over domain points.
func Distance(a, b domain.GeoPoint) float64 {
	return Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
}

// PathLength sums consecutive point-to-point distances in meters.
func PathLength(points []domain.GeoPoint) float64 {
	var total float64
	for i := 0; i < len(points)-1; i++ {
		total += Distance(points[i], points[i+1])
	}
	return total
}

// Bearing returns the initial great-circle bearing from a to b in degrees [0, 360).
func Bearing(a, b domain.GeoPoint) float64 {
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLon := toRad(b.Lon - a.Lon)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// CompassDirection names a bearing with one of the eight compass points.
func CompassDirection(bearingDeg float64) string {
	names := []string{"north", "northeast", "east", "southeast", "south", "southwest", "west", "northwest"}
	idx := int(math.Mod(bearingDeg+22.5, 360) / 45)
	return names[idx]
}

// Centroid returns the arithmetic mean of the points. Adequate for the small
// shapes drawn around a runner's location; not a spherical centroid.
func Centroid(points []domain.GeoPoint) domain.GeoPoint {
	if len(points) == 0 {
		return domain.GeoPoint{}
	}
	var lat, lon float64
	for _, p := range points {
		lat += p.Lat
		lon += p.Lon
	}
	n := float64(len(points))
	return domain.GeoPoint{Lat: lat / n, Lon: lon / n}
}

// MaxPairwiseDistance returns the largest distance between any two points in meters.
func MaxPairwiseDistance(points []domain.GeoPoint) float64 {
	var max float64
	for i := 0; i < len(points); i++ {
		for j := i + 1; j < len(points); j++ {
			if d := Distance(points[i], points[j]); d > max {
				max = d
			}
		}
	}
	return max
}

// Interpolate returns the point a fraction t along the straight segment from a
// to b. Linear in degrees, which is accurate enough at running-route scales.
func Interpolate(a, b domain.GeoPoint, t float64) domain.GeoPoint {
	return domain.GeoPoint{
		Lat: a.Lat + t*(b.Lat-a.Lat),
		Lon: a.Lon + t*(b.Lon-a.Lon),
	}
}

// BoundingBox returns a bounding box around a point with the given radius in meters.
func BoundingBox(lat, lon, radiusMeters float64) (minLat, minLon, maxLat, maxLon float64) {
	latDelta := radiusMeters / 111320.0
	lonDelta := radiusMeters / (111320.0 * math.Cos(toRad(lat)))

	return lat - latDelta, lon - lonDelta, lat + latDelta, lon + lonDelta
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
