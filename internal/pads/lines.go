package pads

import (
	"context"
	"log"

	"github.com/google/uuid"

	"github.com/padsync/padsync/internal/broadcast"
	syncerrors "github.com/padsync/padsync/internal/errors"
	"github.com/padsync/padsync/internal/geometry"
	"github.com/padsync/padsync/internal/padstore"
	"github.com/padsync/padsync/internal/route"
	"github.com/padsync/padsync/pkg/types"
)

// GetLine returns one line of the pad.
func (s *Service) GetLine(ctx context.Context, padID, id string) (*types.Line, error) {
	return s.store.GetLine(ctx, padID, id)
}

// LineTemplate returns the default properties for a new line of the given
// type, so clients can draw with final styling before the line exists.
func (s *Service) LineTemplate(ctx context.Context, padID, typeID string) (*types.Line, error) {
	line := &types.Line{
		PadID:  padID,
		TypeID: typeID,
		Mode:   types.ModeNone,
		Colour: "0000ff",
		Width:  4,
	}
	if typeID != "" {
		t, err := s.store.GetType(ctx, padID, typeID)
		if err != nil {
			return nil, err
		}
		for _, f := range t.Fields {
			if f.Default == "" {
				continue
			}
			if line.Data == nil {
				line.Data = map[string]string{}
			}
			line.Data[f.Name] = f.Default
		}
	}
	return line, nil
}

// ExportLinePoints returns the line's complete full-resolution geometry.
func (s *Service) ExportLinePoints(ctx context.Context, padID, id string) ([]types.TrackPoint, error) {
	if _, err := s.store.GetLine(ctx, padID, id); err != nil {
		return nil, err
	}
	return s.geom.FullLinePoints(ctx, id)
}

// calculateGeometry derives the rendered geometry and metadata for a line.
// Routed modes go through the external route engine; none/track connect the
// control points directly. The result's track points arrive zoom-annotated.
func (s *Service) calculateGeometry(ctx context.Context, line *types.Line) ([]types.TrackPoint, error) {
	var (
		result *route.Result
		err    error
	)
	switch line.Mode {
	case types.ModeNone, types.ModeTrack:
		result, err = route.StraightLine{}.Calculate(ctx, line.Mode, line.RoutePoints)
	default:
		result, err = s.router.Calculate(ctx, line.Mode, line.RoutePoints)
	}
	if err != nil {
		return nil, syncerrors.NewInternalError("route calculation failed", err)
	}

	line.Distance = result.Distance
	line.Time = result.Time
	line.Ascent = result.Ascent
	line.Descent = result.Descent
	line.Bounds = geometry.Bounds(result.TrackPoints)
	return result.TrackPoints, nil
}

// AddLine creates a line, computes and stores its geometry, and fans out
// both the line and its points.
func (s *Service) AddLine(ctx context.Context, perm types.Permission, padID string, line *types.Line) (*types.Line, error) {
	if err := requireWrite(perm); err != nil {
		return nil, err
	}
	if err := line.Validate(); err != nil {
		return nil, syncerrors.NewValidationError(syncerrors.CodeInvalidObject, "invalid line", err)
	}

	line.PadID = padID
	if line.ID == "" {
		line.ID = uuid.New().String()
	}

	unlock := s.lockPad(padID)
	defer unlock()

	points, err := s.calculateGeometry(ctx, line)
	if err != nil {
		return nil, err
	}

	entry := &types.HistoryEntry{
		PadID:      padID,
		ObjectKind: types.KindLine,
		ObjectID:   line.ID,
		Action:     types.ActionCreate,
	}
	// The geometry store is a separate database, so its write happens
	// before the pad transaction commits: a failed write rolls the line and
	// its history entry back, and a failed commit compensates the geometry.
	err = s.store.InTx(ctx, func(tx padstore.DBTX) error {
		if err := s.store.CreateLine(ctx, tx, line); err != nil {
			return err
		}
		if err := s.hist.Append(ctx, tx, entry); err != nil {
			return err
		}
		return s.geom.SetLinePoints(ctx, padID, line.ID, points)
	})
	if err != nil {
		if cerr := s.geom.DeleteLine(ctx, line.ID); cerr != nil {
			log.Printf("pads: compensate line %s geometry: %v", line.ID, cerr)
		}
		return nil, err
	}

	s.bus.Publish(padID, broadcast.UpsertEvent(types.EventLine, line))
	s.bus.Publish(padID, broadcast.LinePointsEvent(line.ID, points, true))
	s.bus.Publish(padID, broadcast.Event{Name: types.EventHistory, Data: entry})
	s.markDirty(padID)
	return line, nil
}

// EditLine replaces a line's fields, recomputing the geometry when the
// control points or routing mode changed. Last write wins, as for markers.
func (s *Service) EditLine(ctx context.Context, perm types.Permission, padID string, line *types.Line) (*types.Line, error) {
	if err := requireWrite(perm); err != nil {
		return nil, err
	}
	if err := line.Validate(); err != nil {
		return nil, syncerrors.NewValidationError(syncerrors.CodeInvalidObject, "invalid line", err)
	}

	line.PadID = padID

	unlock := s.lockPad(padID)
	defer unlock()

	prev, err := s.store.GetLine(ctx, padID, line.ID)
	if err != nil {
		return nil, err
	}
	snapshot, err := snapshotJSON(prev)
	if err != nil {
		return nil, err
	}

	geometryChanged := line.Mode != prev.Mode || !samePoints(line.RoutePoints, prev.RoutePoints)

	var points, prevPoints []types.TrackPoint
	if geometryChanged {
		points, err = s.calculateGeometry(ctx, line)
		if err != nil {
			return nil, err
		}
		// Held for compensation if the pad transaction fails to commit
		// after the geometry was replaced.
		prevPoints, err = s.geom.FullLinePoints(ctx, line.ID)
		if err != nil {
			return nil, err
		}
	} else {
		line.Distance = prev.Distance
		line.Time = prev.Time
		line.Ascent = prev.Ascent
		line.Descent = prev.Descent
		line.Bounds = prev.Bounds
	}

	entry := &types.HistoryEntry{
		PadID:      padID,
		ObjectKind: types.KindLine,
		ObjectID:   line.ID,
		Action:     types.ActionUpdate,
		Snapshot:   snapshot,
	}
	err = s.store.InTx(ctx, func(tx padstore.DBTX) error {
		if err := s.store.UpdateLine(ctx, tx, line); err != nil {
			return err
		}
		if err := s.hist.Append(ctx, tx, entry); err != nil {
			return err
		}
		if geometryChanged {
			return s.geom.SetLinePoints(ctx, padID, line.ID, points)
		}
		return nil
	})
	if err != nil {
		if geometryChanged {
			if cerr := s.geom.SetLinePoints(ctx, padID, line.ID, prevPoints); cerr != nil {
				log.Printf("pads: restore line %s geometry: %v", line.ID, cerr)
			}
		}
		return nil, err
	}

	s.bus.Publish(padID, broadcast.UpsertEvent(types.EventLine, line))
	if geometryChanged {
		s.bus.Publish(padID, broadcast.LinePointsEvent(line.ID, points, true))
	}
	s.bus.Publish(padID, broadcast.Event{Name: types.EventHistory, Data: entry})
	s.markDirty(padID)
	return line, nil
}

// DeleteLine removes a line and its geometry and fans the deletion out.
func (s *Service) DeleteLine(ctx context.Context, perm types.Permission, padID, id string) error {
	if err := requireWrite(perm); err != nil {
		return err
	}

	unlock := s.lockPad(padID)
	defer unlock()

	prev, err := s.store.GetLine(ctx, padID, id)
	if err != nil {
		return err
	}
	snapshot, err := snapshotJSON(prev)
	if err != nil {
		return err
	}

	entry := &types.HistoryEntry{
		PadID:      padID,
		ObjectKind: types.KindLine,
		ObjectID:   id,
		Action:     types.ActionDelete,
		Snapshot:   snapshot,
	}
	err = s.store.InTx(ctx, func(tx padstore.DBTX) error {
		if err := s.store.DeleteLine(ctx, tx, padID, id); err != nil {
			return err
		}
		return s.hist.Append(ctx, tx, entry)
	})
	if err != nil {
		return err
	}

	// Geometry of a deleted line is unreachable (fills resolve candidates
	// through line rows), so cleanup failure must not suppress the
	// committed mutation's broadcast.
	if err := s.geom.DeleteLine(ctx, id); err != nil {
		log.Printf("pads: delete line %s geometry: %v", id, err)
	}

	s.publishMutation(padID, broadcast.DeleteEvent(types.EventDeleteLine, id), entry)
	return nil
}

func samePoints(a, b []types.Point) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
