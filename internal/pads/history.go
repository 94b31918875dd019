package pads

import (
	"context"
	"encoding/json"
	"errors"

	syncerrors "github.com/padsync/padsync/internal/errors"
	"github.com/padsync/padsync/pkg/types"
)

// HistoryEntries returns the pad's retained history, newest first.
func (s *Service) HistoryEntries(ctx context.Context, padID string) ([]*types.HistoryEntry, error) {
	return s.hist.Entries(ctx, padID)
}

// RevertHistoryEntry undoes one history entry by applying a compensating
// mutation through the normal pipeline: reverting a create deletes the
// object, reverting an update restores the snapshot, reverting a delete
// recreates the object under its original id. The revert itself produces a
// fresh history entry and broadcasts like any other mutation.
func (s *Service) RevertHistoryEntry(ctx context.Context, perm types.Permission, padID, entryID string) error {
	if err := requireWrite(perm); err != nil {
		return err
	}

	entry, err := s.hist.Entry(ctx, padID, entryID)
	if err != nil {
		return err
	}

	switch entry.ObjectKind {
	case types.KindMarker:
		return s.revertMarker(ctx, perm, padID, entry)
	case types.KindLine:
		return s.revertLine(ctx, perm, padID, entry)
	case types.KindView:
		return s.revertView(ctx, perm, padID, entry)
	case types.KindType:
		return s.revertType(ctx, perm, padID, entry)
	case types.KindPad:
		return s.revertPad(ctx, perm, padID, entry)
	default:
		return syncerrors.NewValidationError(syncerrors.CodeInvalidObject, "unknown history object kind", nil)
	}
}

func (s *Service) revertMarker(ctx context.Context, perm types.Permission, padID string, entry *types.HistoryEntry) error {
	if entry.Action == types.ActionCreate {
		return s.DeleteMarker(ctx, perm, padID, entry.ObjectID)
	}

	var m types.Marker
	if err := unmarshalSnapshot(entry, &m); err != nil {
		return err
	}
	m.ID = entry.ObjectID

	if _, err := s.store.GetMarker(ctx, padID, entry.ObjectID); err != nil {
		if isNotFound(err) {
			_, err = s.AddMarker(ctx, perm, padID, &m)
			return err
		}
		return err
	}
	_, err := s.EditMarker(ctx, perm, padID, &m)
	return err
}

func (s *Service) revertLine(ctx context.Context, perm types.Permission, padID string, entry *types.HistoryEntry) error {
	if entry.Action == types.ActionCreate {
		return s.DeleteLine(ctx, perm, padID, entry.ObjectID)
	}

	var l types.Line
	if err := unmarshalSnapshot(entry, &l); err != nil {
		return err
	}
	l.ID = entry.ObjectID

	if _, err := s.store.GetLine(ctx, padID, entry.ObjectID); err != nil {
		if isNotFound(err) {
			_, err = s.AddLine(ctx, perm, padID, &l)
			return err
		}
		return err
	}
	_, err := s.EditLine(ctx, perm, padID, &l)
	return err
}

func (s *Service) revertView(ctx context.Context, perm types.Permission, padID string, entry *types.HistoryEntry) error {
	if entry.Action == types.ActionCreate {
		return s.DeleteView(ctx, perm, padID, entry.ObjectID)
	}

	var v types.View
	if err := unmarshalSnapshot(entry, &v); err != nil {
		return err
	}
	v.ID = entry.ObjectID

	if _, err := s.store.GetView(ctx, padID, entry.ObjectID); err != nil {
		if isNotFound(err) {
			_, err = s.AddView(ctx, perm, padID, &v)
			return err
		}
		return err
	}
	_, err := s.EditView(ctx, perm, padID, &v)
	return err
}

func (s *Service) revertType(ctx context.Context, perm types.Permission, padID string, entry *types.HistoryEntry) error {
	if entry.Action == types.ActionCreate {
		return s.DeleteType(ctx, perm, padID, entry.ObjectID)
	}

	var t types.Type
	if err := unmarshalSnapshot(entry, &t); err != nil {
		return err
	}
	t.ID = entry.ObjectID

	if _, err := s.store.GetType(ctx, padID, entry.ObjectID); err != nil {
		if isNotFound(err) {
			_, err = s.AddType(ctx, perm, padID, &t)
			return err
		}
		return err
	}
	_, err := s.EditType(ctx, perm, padID, &t)
	return err
}

func (s *Service) revertPad(ctx context.Context, perm types.Permission, padID string, entry *types.HistoryEntry) error {
	if entry.Action != types.ActionUpdate {
		return syncerrors.NewValidationError(syncerrors.CodeInvalidObject, "pad create and delete cannot be reverted", nil)
	}

	var p types.Pad
	if err := unmarshalSnapshot(entry, &p); err != nil {
		return err
	}
	_, err := s.EditPad(ctx, perm, padID, &p)
	return err
}

func unmarshalSnapshot(entry *types.HistoryEntry, dst any) error {
	if len(entry.Snapshot) == 0 {
		return syncerrors.NewValidationError(syncerrors.CodeInvalidObject, "history entry has no snapshot", nil)
	}
	if err := json.Unmarshal(entry.Snapshot, dst); err != nil {
		return syncerrors.NewInternalError("unmarshal history snapshot", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var se *syncerrors.SyncError
	return errors.As(err, &se) && se.Category == syncerrors.ErrCategoryNotFound
}
