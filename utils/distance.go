package utils

import (
	"math"
	"time"
)

const earthRadiusKM = 6371.0

// HaversineKM returns the great-circle distance between two points.
func HaversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	la1 := lat1 * math.Pi / 180
	la2 := lat2 * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(la1)*math.Cos(la2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}

// RoutePoint is the minimal shape SummarizeRoute needs from a fix.
type RoutePoint struct {
	Latitude  float64
	Longitude float64
	Time      time.Time
}

// RouteSummary describes a historical route.
type RouteSummary struct {
	Points   int
	Start    time.Time
	End      time.Time
	LengthKM float64
}

// Duration is the time between the first and last point.
func (s RouteSummary) Duration() time.Duration {
	if s.Points < 2 {
		return 0
	}
	return s.End.Sub(s.Start)
}

// SummarizeRoute walks the points in order and sums segment lengths.
func SummarizeRoute(points []RoutePoint) RouteSummary {
	s := RouteSummary{Points: len(points)}
	if len(points) == 0 {
		return s
	}
	s.Start = points[0].Time
	s.End = points[len(points)-1].Time
	for i := 1; i < len(points); i++ {
		p, q := points[i-1], points[i]
		s.LengthKM += HaversineKM(p.Latitude, p.Longitude, q.Latitude, q.Longitude)
	}
	return s
}
