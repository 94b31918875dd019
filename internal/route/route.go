// Package route defines the external route-calculation collaborator. The
// sync core consumes it as a black box returning a geometry plus metadata;
// real engines (OSRM, GraphHopper, ...) are plugged in from the outside.
package route

import (
	"context"
	"math"

	"github.com/padsync/padsync/internal/geometry"
	"github.com/padsync/padsync/pkg/types"
)

// Result is a computed route: zoom-annotated geometry plus metadata.
type Result struct {
	// TrackPoints is the rendered geometry, zoom-tagged and idx-ordered.
	TrackPoints []types.TrackPoint

	// Distance is the route length in kilometers.
	Distance float64

	// Time is the estimated travel time in seconds, 0 when unknown.
	Time int

	Ascent  int
	Descent int
}

// Service calculates a route through the given control points.
type Service interface {
	Calculate(ctx context.Context, mode types.RoutingMode, routePoints []types.Point) (*Result, error)
}

// StraightLine connects the control points directly. It serves the
// none/track modes and acts as the fallback when no engine is configured.
type StraightLine struct{}

// Calculate returns the control points themselves as the geometry, run
// through the zoom simplifier, with the great-circle distance as metadata.
func (StraightLine) Calculate(ctx context.Context, mode types.RoutingMode, routePoints []types.Point) (*Result, error) {
	points := geometry.Simplify(routePoints)

	distance := 0.0
	for i := 1; i < len(routePoints); i++ {
		distance += haversineKm(routePoints[i-1], routePoints[i])
	}

	return &Result{
		TrackPoints: points,
		Distance:    distance,
	}, nil
}

const earthRadiusKm = 6371

// haversineKm is the great-circle distance between two coordinates.
func haversineKm(a, b types.Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
