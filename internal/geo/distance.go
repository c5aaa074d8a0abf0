package geo

import "math"

const earthRadiusKm = 6371

// Distance returns the great-circle distance in kilometres between two
// coordinates using the Haversine formula.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180
	lat1 *= degToRad
	lon1 *= degToRad
	lat2 *= degToRad
	lon2 *= degToRad
	dlat := lat2 - lat1
	dlon := lon2 - lon1
	a := math.Sin(dlat/2)*math.Sin(dlat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Asin(math.Sqrt(a))
	return earthRadiusKm * c
}
