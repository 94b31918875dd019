// Package reconciler merges the point-indexed partial updates and object
// events a subscribed client receives into coherent local collections. It is
// the receiving-side counterpart of the viewport fill: the server never
// tells a client to forget a marker or line, so the collections only shrink
// on explicit deletes, resets and zoom evictions.
package reconciler

import (
	"encoding/json"
	"sort"

	"github.com/padsync/padsync/pkg/types"
)

// PointSet is a sparse idx-keyed set of track points for one line.
type PointSet struct {
	points map[int]types.TrackPoint
}

// NewPointSet creates an empty point set.
func NewPointSet() *PointSet {
	return &PointSet{points: make(map[int]types.TrackPoint)}
}

// Length is max(idx)+1 over the known points. Indices may be missing, so
// this is a rendering hint, not a point count.
func (s *PointSet) Length() int {
	max := -1
	for idx := range s.points {
		if idx > max {
			max = idx
		}
	}
	return max + 1
}

// Count returns the number of points actually held.
func (s *PointSet) Count() int {
	return len(s.points)
}

// Get returns the point at idx, if known.
func (s *PointSet) Get(idx int) (types.TrackPoint, bool) {
	p, ok := s.points[idx]
	return p, ok
}

// Points returns the held points ordered by idx.
func (s *PointSet) Points() []types.TrackPoint {
	out := make([]types.TrackPoint, 0, len(s.points))
	for _, p := range s.points {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Idx < out[j].Idx })
	return out
}

// Merge applies a partial point update. With reset, held points are
// discarded first (a fully replaced geometry). Otherwise incoming points
// overwrite any held point at the same idx; a merge never removes points.
func (s *PointSet) Merge(incoming []types.TrackPoint, reset bool) {
	if reset {
		s.points = make(map[int]types.TrackPoint, len(incoming))
	}
	for _, p := range incoming {
		s.points[p.Idx] = p
	}
}

// EvictAboveZoom drops points above the given zoom. Used when the viewport
// zooms out and the server signals that finer detail left the visible set.
func (s *PointSet) EvictAboveZoom(zoom int) {
	for idx, p := range s.points {
		if p.Zoom > zoom {
			delete(s.points, idx)
		}
	}
}

// Collections is a client's local copy of the subscribed pad. All methods
// are idempotent under redelivery: applying the same upsert twice leaves the
// same state, and deleting an unknown id is a no-op.
type Collections struct {
	PadData *types.Pad

	Markers map[string]*types.Marker
	Lines   map[string]*types.Line
	Views   map[string]*types.View
	Types   map[string]*types.Type
	History map[string]*types.HistoryEntry

	TrackPoints map[string]*PointSet // line id -> points
}

// NewCollections creates empty collections.
func NewCollections() *Collections {
	return &Collections{
		Markers:     make(map[string]*types.Marker),
		Lines:       make(map[string]*types.Line),
		Views:       make(map[string]*types.View),
		Types:       make(map[string]*types.Type),
		History:     make(map[string]*types.HistoryEntry),
		TrackPoints: make(map[string]*PointSet),
	}
}

// MergeTrackPoints applies a linePoints update for a line.
func (c *Collections) MergeTrackPoints(lineID string, points []types.TrackPoint, reset bool) {
	set, ok := c.TrackPoints[lineID]
	if !ok {
		set = NewPointSet()
		c.TrackPoints[lineID] = set
	}
	set.Merge(points, reset)
}

// ApplyEvent applies one push event to the collections. Unknown event names
// are ignored so newer servers can ship additional events to older clients.
func (c *Collections) ApplyEvent(name string, data json.RawMessage) error {
	switch name {
	case types.EventPadData:
		var pad types.Pad
		if err := json.Unmarshal(data, &pad); err != nil {
			return err
		}
		c.PadData = &pad

	case types.EventDeletePad:
		c.PadData = nil

	case types.EventMarker:
		var m types.Marker
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		c.Markers[m.ID] = &m

	case types.EventDeleteMarker:
		id, err := deleteID(data)
		if err != nil {
			return err
		}
		delete(c.Markers, id)

	case types.EventLine:
		var l types.Line
		if err := json.Unmarshal(data, &l); err != nil {
			return err
		}
		c.Lines[l.ID] = &l

	case types.EventDeleteLine:
		id, err := deleteID(data)
		if err != nil {
			return err
		}
		delete(c.Lines, id)
		delete(c.TrackPoints, id)

	case types.EventLinePoints:
		var payload types.LinePointsPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		c.MergeTrackPoints(payload.ID, payload.TrackPoints, payload.Reset)

	case types.EventView:
		var v types.View
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		c.Views[v.ID] = &v

	case types.EventDeleteView:
		id, err := deleteID(data)
		if err != nil {
			return err
		}
		delete(c.Views, id)

	case types.EventType:
		var t types.Type
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}
		c.Types[t.ID] = &t

	case types.EventDeleteType:
		id, err := deleteID(data)
		if err != nil {
			return err
		}
		delete(c.Types, id)

	case types.EventHistory:
		var e types.HistoryEntry
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		c.History[e.ID] = &e
	}
	return nil
}

func deleteID(data json.RawMessage) (string, error) {
	var payload types.DeletePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", err
	}
	return payload.ID, nil
}
