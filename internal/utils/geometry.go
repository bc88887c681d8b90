package utils

import "math"

const (
	// RadiusOfEarthInMeters is the mean earth radius used for distances.
	RadiusOfEarthInMeters = 6371010.0

	// WebMercatorRadius is the sphere radius of EPSG:3857.
	WebMercatorRadius = 6378137.0
)

// CoordinateBounds represents a bounding box with min/max latitude and longitude
type CoordinateBounds struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// WebMercatorToLatLon converts spherical Web-Mercator meters to WGS84
// degrees. It is total: any finite input yields finite output, with the
// latitude confined to [-90, 90].
func WebMercatorToLatLon(x, y float64) (lat, lon float64) {
	lon = (x / WebMercatorRadius) * 180 / math.Pi
	lat = (2*math.Atan(math.Exp(y/WebMercatorRadius)) - math.Pi/2) * 180 / math.Pi
	return lat, lon
}

// Distance calculates the distance in meters between two points on the Earth.
// Short hops use the equirectangular approximation.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	if math.Abs(lat2-lat1) < 0.2 && math.Abs(lon2-lon1) < 0.2 {
		lat1Rad := lat1 * (math.Pi / 180)
		lat2Rad := lat2 * (math.Pi / 180)
		dLatRad := (lat2 - lat1) * (math.Pi / 180)
		dLonRad := (lon2 - lon1) * (math.Pi / 180)

		x := dLonRad * math.Cos((lat1Rad+lat2Rad)/2)
		return RadiusOfEarthInMeters * math.Sqrt(x*x+dLatRad*dLatRad)
	}

	lat1Rad := lat1 * (math.Pi / 180)
	lat2Rad := lat2 * (math.Pi / 180)
	deltaLon := (lon2 - lon1) * (math.Pi / 180)

	y := math.Hypot(math.Cos(lat2Rad)*math.Sin(deltaLon),
		math.Cos(lat1Rad)*math.Sin(lat2Rad)-math.Sin(lat1Rad)*math.Cos(lat2Rad)*math.Cos(deltaLon))
	x := math.Sin(lat1Rad)*math.Sin(lat2Rad) + math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Cos(deltaLon)

	return RadiusOfEarthInMeters * math.Atan2(y, x)
}

// CalculateBounds returns the box enclosing a circle of radius distance
// meters around lat/lon.
func CalculateBounds(lat, lon, distance float64) CoordinateBounds {
	latRadians := lat * math.Pi / 180
	lonRadians := lon * math.Pi / 180

	latOffset := distance / RadiusOfEarthInMeters
	lonOffset := distance / (math.Cos(latRadians) * RadiusOfEarthInMeters)

	return CoordinateBounds{
		MinLat: (latRadians - latOffset) * 180 / math.Pi,
		MaxLat: (latRadians + latOffset) * 180 / math.Pi,
		MinLon: (lonRadians - lonOffset) * 180 / math.Pi,
		MaxLon: (lonRadians + lonOffset) * 180 / math.Pi,
	}
}
