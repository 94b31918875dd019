// Package types provides core data types for padsync.
package types

// Zoom bounds for all point-bearing queries. Zoom 1 is the coarsest level
// a client can subscribe at; zoom 20 carries the full-resolution geometry.
const (
	MinZoom = 1
	MaxZoom = 20
)

// Point is a plain lat/lon coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// TrackPoint is one vertex of a line's rendered geometry.
type TrackPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`

	// Idx is the point's position in the full-resolution geometry, 0-based.
	// Gaps are allowed in transport (partial updates) but never in storage.
	Idx int `json:"idx"`

	// Zoom is the minimum zoom level at which this point is rendered.
	// Lower zoom levels see a strict subset of the points.
	Zoom int `json:"zoom"`
}

// Bbox is an axis-aligned lat/lon rectangle. When Right < Left the bbox
// wraps the antimeridian and covers the union of [Left,180] and [-180,Right].
type Bbox struct {
	Top    float64 `json:"top" yaml:"top"`
	Bottom float64 `json:"bottom" yaml:"bottom"`
	Left   float64 `json:"left" yaml:"left"`
	Right  float64 `json:"right" yaml:"right"`
}

// Validate checks the bbox shape. Antimeridian wrap (Right < Left) is legal.
func (b Bbox) Validate() error {
	if b.Top < b.Bottom {
		return ErrBboxInverted
	}
	if b.Top > 90 || b.Bottom < -90 {
		return ErrLatOutOfRange
	}
	if b.Left < -180 || b.Left > 180 || b.Right < -180 || b.Right > 180 {
		return ErrLonOutOfRange
	}
	return nil
}

// WrapsAntimeridian reports whether the bbox spans lon = 180.
func (b Bbox) WrapsAntimeridian() bool {
	return b.Right < b.Left
}

// ContainsLon reports whether a longitude falls inside the bbox's
// longitude range, honoring antimeridian wrap.
func (b Bbox) ContainsLon(lon float64) bool {
	if b.WrapsAntimeridian() {
		return lon >= b.Left || lon <= b.Right
	}
	return lon >= b.Left && lon <= b.Right
}

// Contains reports whether the position falls inside the bbox.
func (b Bbox) Contains(lat, lon float64) bool {
	if lat > b.Top || lat < b.Bottom {
		return false
	}
	return b.ContainsLon(lon)
}

// Intersects reports whether two bboxes share any area. Used as the cheap
// pre-filter against a line's cached bounding box.
func (b Bbox) Intersects(o Bbox) bool {
	if b.Top < o.Bottom || b.Bottom > o.Top {
		return false
	}
	return lonRangesOverlap(b, o)
}

func lonRangesOverlap(a, o Bbox) bool {
	switch {
	case !a.WrapsAntimeridian() && !o.WrapsAntimeridian():
		return a.Left <= o.Right && a.Right >= o.Left
	case a.WrapsAntimeridian() && o.WrapsAntimeridian():
		// Both cross lon = 180, so both contain it.
		return true
	case a.WrapsAntimeridian():
		return o.Right >= a.Left || o.Left <= a.Right
	default:
		return a.Right >= o.Left || a.Left <= o.Right
	}
}

// BboxWithZoom is the viewport shape used by point-bearing queries: the
// rectangle plus the zoom level bounding point detail, plus an optional
// Except sub-region excluding previously delivered results from a
// differential fill.
type BboxWithZoom struct {
	Bbox
	Zoom int `json:"zoom"`

	// Except, when set, excludes objects already delivered for a previous
	// viewport: a track point is dropped when it lies inside Except and its
	// zoom is at or below Except's zoom (markers ignore the zoom part).
	Except *BboxWithZoom `json:"except,omitempty"`
}

// Validate checks the rectangle and the zoom range, recursing into Except.
func (b BboxWithZoom) Validate() error {
	if err := b.Bbox.Validate(); err != nil {
		return err
	}
	if b.Zoom < MinZoom || b.Zoom > MaxZoom {
		return ErrZoomOutOfRange
	}
	if b.Except != nil {
		return b.Except.Validate()
	}
	return nil
}

// ContainsTrackPoint reports whether the point is visible in this viewport:
// at or below the viewport zoom, inside the rectangle, and not already
// covered by the Except sub-region.
func (b BboxWithZoom) ContainsTrackPoint(p TrackPoint) bool {
	if p.Zoom > b.Zoom {
		return false
	}
	if !b.Contains(p.Lat, p.Lon) {
		return false
	}
	if b.Except != nil && p.Zoom <= b.Except.Zoom && b.Except.Contains(p.Lat, p.Lon) {
		return false
	}
	return true
}

// ContainsPosition is the marker variant of ContainsTrackPoint: markers are
// not zoom-scoped, so only the rectangles are consulted.
func (b BboxWithZoom) ContainsPosition(lat, lon float64) bool {
	if !b.Contains(lat, lon) {
		return false
	}
	if b.Except != nil && b.Except.Contains(lat, lon) {
		return false
	}
	return true
}
