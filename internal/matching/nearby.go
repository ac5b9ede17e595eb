package matching

import (
	"math"
	"sort"

	"github.com/storeit/dashboard/internal/models"
)

// DefaultNearbyRadiusMeters is the search circle drawn around a selected customer.
const DefaultNearbyRadiusMeters = 5000

const earthRadiusMeters = 6371000.0

// HostDistance pairs a host with its distance from a reference point.
type HostDistance struct {
	Host     models.HostRecord
	Distance float64 // meters
}

// HostsWithinRadius returns hosts with coordinates within radiusMeters of center, closest first.
func HostsWithinRadius(hosts []models.HostRecord, center models.Location, radiusMeters float64) []HostDistance {
	out := make([]HostDistance, 0)
	for _, h := range hosts {
		loc, ok := h.Location()
		if !ok {
			continue
		}
		d := DistanceMeters(center, loc)
		if d <= radiusMeters {
			out = append(out, HostDistance{Host: h, Distance: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Distance < out[j].Distance
	})
	return out
}

// DistanceMeters is the haversine great-circle distance between two points.
func DistanceMeters(a, b models.Location) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}
