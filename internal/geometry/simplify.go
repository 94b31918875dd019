package geometry

import (
	"math"

	"github.com/padsync/padsync/pkg/types"
)

// Simplify turns a full-resolution coordinate sequence into zoom-tagged
// track points. A Douglas-Peucker pass runs per zoom band with a tolerance
// of roughly two tile pixels at that zoom; each point's zoom tag is the
// coarsest band that retains it. Rendering at zoom Z then selects all points
// with zoom <= Z, so coarser zooms see nested subsets by construction.
//
// Points that survive no band before full detail are tagged MaxZoom.
// Sequences of fewer than three points pass through at the coarsest zoom.
func Simplify(coords []types.Point) []types.TrackPoint {
	n := len(coords)
	points := make([]types.TrackPoint, n)
	for i, c := range coords {
		points[i] = types.TrackPoint{Lat: c.Lat, Lon: c.Lon, Idx: i, Zoom: types.MaxZoom}
	}
	if n < 3 {
		for i := range points {
			points[i].Zoom = types.MinZoom
		}
		return points
	}

	for z := types.MinZoom; z < types.MaxZoom; z++ {
		keep := douglasPeucker(coords, toleranceForZoom(z))
		for idx := range keep {
			if points[idx].Zoom == types.MaxZoom {
				points[idx].Zoom = z
			}
		}
	}
	return points
}

// toleranceForZoom is approximately two pixels of a 256px world tile at the
// given zoom, in degrees.
func toleranceForZoom(zoom int) float64 {
	return 2 * 360 / (256 * math.Pow(2, float64(zoom)))
}

// douglasPeucker returns the index set retained at the given tolerance.
// Endpoints are always retained.
func douglasPeucker(coords []types.Point, epsilon float64) map[int]struct{} {
	keep := map[int]struct{}{
		0:               {},
		len(coords) - 1: {},
	}

	type span struct{ first, last int }
	stack := []span{{0, len(coords) - 1}}

	for len(stack) > 0 {
		sp := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if sp.last-sp.first < 2 {
			continue
		}

		maxDist := 0.0
		maxIdx := -1
		for i := sp.first + 1; i < sp.last; i++ {
			d := perpendicularDistance(coords[i], coords[sp.first], coords[sp.last])
			if d > maxDist {
				maxDist = d
				maxIdx = i
			}
		}

		if maxDist > epsilon {
			keep[maxIdx] = struct{}{}
			stack = append(stack, span{sp.first, maxIdx}, span{maxIdx, sp.last})
		}
	}
	return keep
}

// perpendicularDistance is the planar distance from p to the segment a-b in
// degrees. Accurate enough for a simplification tolerance.
func perpendicularDistance(p, a, b types.Point) float64 {
	dLat := b.Lat - a.Lat
	dLon := b.Lon - a.Lon
	if dLat == 0 && dLon == 0 {
		return math.Hypot(p.Lat-a.Lat, p.Lon-a.Lon)
	}
	t := ((p.Lat-a.Lat)*dLat + (p.Lon-a.Lon)*dLon) / (dLat*dLat + dLon*dLon)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return math.Hypot(p.Lat-(a.Lat+t*dLat), p.Lon-(a.Lon+t*dLon))
}
