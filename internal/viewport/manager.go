// Package viewport computes per-connection differential viewport fills: on
// every viewport change, the minimal set of objects newly in view is fetched
// and emitted, excluding everything the connection already holds.
package viewport

import (
	"context"

	syncerrors "github.com/padsync/padsync/internal/errors"
	"github.com/padsync/padsync/pkg/types"
)

// ObjectSource answers bbox-range queries for pad objects.
type ObjectSource interface {
	MarkersInBbox(ctx context.Context, padID string, bbox types.BboxWithZoom) ([]*types.Marker, error)
	LineBboxesInBbox(ctx context.Context, padID string, bbox types.BboxWithZoom) ([]*types.Line, error)
}

// PointSource streams zoom-scoped track points for candidate lines.
type PointSource interface {
	QueryPadPoints(ctx context.Context, padID string, bbox types.BboxWithZoom, lineIDs []string, fn func(lineID string, points []types.TrackPoint) error) error
}

// Handler receives the objects entering the connection's view. Implemented
// by the socket session, which forwards them as push events.
type Handler interface {
	HandleMarkers(markers []*types.Marker) error
	HandleLines(lines []*types.Line) error
	HandleLinePoints(lineID string, points []types.TrackPoint, reset bool) error
}

// Manager holds one connection's viewport state. It is owned exclusively by
// that connection and needs no locking.
type Manager struct {
	objects ObjectSource
	points  PointSource

	padID string
	cur   *types.BboxWithZoom
}

// NewManager creates a viewport manager over the given sources.
func NewManager(objects ObjectSource, points PointSource) *Manager {
	return &Manager{
		objects: objects,
		points:  points,
	}
}

// Attach binds the manager to a pad and forgets any previous viewport, so
// the next SetViewport performs a full fill.
func (m *Manager) Attach(padID string) {
	m.padID = padID
	m.cur = nil
}

// Viewport returns the current viewport, or nil before the first
// successful SetViewport.
func (m *Manager) Viewport() *types.BboxWithZoom {
	return m.cur
}

// SetViewport validates and applies a new viewport, emitting the
// differential fill through h:
//
//   - first viewport after Attach: full fill of the new bbox;
//   - moved or zoomed-in viewport: fill with except = the old viewport, so
//     only newly visible area and newly visible detail is fetched;
//   - zoomed-out viewport: line points are re-sent with reset so the client
//     drops detail no longer visible at the new zoom, bounding its memory.
//
// A malformed bbox fails with a BBOX error and retains the previous
// viewport unchanged.
func (m *Manager) SetViewport(ctx context.Context, bbox types.BboxWithZoom, h Handler) error {
	if err := bbox.Validate(); err != nil {
		return syncerrors.NewBboxError("invalid viewport", err)
	}

	zoomOut := m.cur != nil && bbox.Zoom < m.cur.Zoom

	// Markers are not zoom-scoped: the old rectangle is always excluded.
	markerQuery := bbox
	if markerQuery.Except == nil && m.cur != nil {
		except := *m.cur
		except.Except = nil
		markerQuery.Except = &except
	}
	markers, err := m.objects.MarkersInBbox(ctx, m.padID, markerQuery)
	if err != nil {
		return err
	}
	if len(markers) > 0 {
		if err := h.HandleMarkers(markers); err != nil {
			return err
		}
	}

	// Stage one of the line fill deliberately ignores except: a line fully
	// inside the old viewport can still carry undelivered higher-zoom
	// detail, so candidates come from the plain new bbox and the point
	// query applies the exclusion.
	lineQuery := bbox
	lineQuery.Except = nil
	lines, err := m.objects.LineBboxesInBbox(ctx, m.padID, lineQuery)
	if err != nil {
		return err
	}
	if len(lines) > 0 {
		if err := h.HandleLines(lines); err != nil {
			return err
		}
	}

	pointQuery := bbox
	if pointQuery.Except == nil && m.cur != nil && !zoomOut {
		except := *m.cur
		except.Except = nil
		pointQuery.Except = &except
	}
	if zoomOut {
		// Everything visible at the new zoom is re-sent as a reset so the
		// client can evict points above it.
		pointQuery.Except = nil
	}

	lineIDs := make([]string, len(lines))
	for i, l := range lines {
		lineIDs[i] = l.ID
	}

	delivered := make(map[string]bool, len(lineIDs))
	err = m.points.QueryPadPoints(ctx, m.padID, pointQuery, lineIDs, func(lineID string, points []types.TrackPoint) error {
		reset := zoomOut && !delivered[lineID]
		delivered[lineID] = true
		return h.HandleLinePoints(lineID, points, reset)
	})
	if err != nil {
		return err
	}

	if zoomOut {
		// Candidate lines with nothing visible at the new zoom still get an
		// explicit empty reset so held detail is evicted.
		for _, lineID := range lineIDs {
			if !delivered[lineID] {
				if err := h.HandleLinePoints(lineID, nil, true); err != nil {
					return err
				}
			}
		}
	}

	applied := bbox
	applied.Except = nil
	m.cur = &applied
	return nil
}
