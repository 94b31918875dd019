package pads

import (
	"context"

	"github.com/google/uuid"

	"github.com/padsync/padsync/internal/broadcast"
	syncerrors "github.com/padsync/padsync/internal/errors"
	"github.com/padsync/padsync/internal/padstore"
	"github.com/padsync/padsync/pkg/types"
)

// AddView saves a named viewport on the pad. Admin only.
func (s *Service) AddView(ctx context.Context, perm types.Permission, padID string, view *types.View) (*types.View, error) {
	if err := requireAdmin(perm); err != nil {
		return nil, err
	}
	if err := view.Bounds.Validate(); err != nil {
		return nil, syncerrors.NewValidationError(syncerrors.CodeInvalidObject, "invalid view bounds", err)
	}

	view.PadID = padID
	if view.ID == "" {
		view.ID = uuid.New().String()
	}

	unlock := s.lockPad(padID)
	defer unlock()

	entry := &types.HistoryEntry{
		PadID:      padID,
		ObjectKind: types.KindView,
		ObjectID:   view.ID,
		Action:     types.ActionCreate,
	}
	err := s.store.InTx(ctx, func(tx padstore.DBTX) error {
		if err := s.store.CreateView(ctx, tx, view); err != nil {
			return err
		}
		return s.hist.Append(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.publishMutation(padID, broadcast.UpsertEvent(types.EventView, view), entry)
	return view, nil
}

// EditView replaces a saved view's fields. Admin only.
func (s *Service) EditView(ctx context.Context, perm types.Permission, padID string, view *types.View) (*types.View, error) {
	if err := requireAdmin(perm); err != nil {
		return nil, err
	}
	if err := view.Bounds.Validate(); err != nil {
		return nil, syncerrors.NewValidationError(syncerrors.CodeInvalidObject, "invalid view bounds", err)
	}

	view.PadID = padID

	unlock := s.lockPad(padID)
	defer unlock()

	prev, err := s.store.GetView(ctx, padID, view.ID)
	if err != nil {
		return nil, err
	}
	snapshot, err := snapshotJSON(prev)
	if err != nil {
		return nil, err
	}

	entry := &types.HistoryEntry{
		PadID:      padID,
		ObjectKind: types.KindView,
		ObjectID:   view.ID,
		Action:     types.ActionUpdate,
		Snapshot:   snapshot,
	}
	err = s.store.InTx(ctx, func(tx padstore.DBTX) error {
		if err := s.store.UpdateView(ctx, tx, view); err != nil {
			return err
		}
		return s.hist.Append(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.publishMutation(padID, broadcast.UpsertEvent(types.EventView, view), entry)
	return view, nil
}

// DeleteView removes a saved view. If the view is the pad's default, the
// default is cleared in the same transaction and the updated pad is pushed.
func (s *Service) DeleteView(ctx context.Context, perm types.Permission, padID, id string) error {
	if err := requireAdmin(perm); err != nil {
		return err
	}

	unlock := s.lockPad(padID)
	defer unlock()

	prev, err := s.store.GetView(ctx, padID, id)
	if err != nil {
		return err
	}
	snapshot, err := snapshotJSON(prev)
	if err != nil {
		return err
	}

	pad, err := s.store.GetPad(ctx, padID)
	if err != nil {
		return err
	}
	clearDefault := pad.DefaultViewID == id

	entry := &types.HistoryEntry{
		PadID:      padID,
		ObjectKind: types.KindView,
		ObjectID:   id,
		Action:     types.ActionDelete,
		Snapshot:   snapshot,
	}
	var updated types.Pad
	err = s.store.InTx(ctx, func(tx padstore.DBTX) error {
		if err := s.store.DeleteView(ctx, tx, padID, id); err != nil {
			return err
		}
		if clearDefault {
			updated = *pad
			updated.DefaultViewID = ""
			if err := s.store.UpdatePad(ctx, tx, &updated); err != nil {
				return err
			}
		}
		return s.hist.Append(ctx, tx, entry)
	})
	if err != nil {
		return err
	}

	if clearDefault {
		s.bus.Publish(padID, broadcast.UpsertEvent(types.EventPadData, &updated))
	}
	s.publishMutation(padID, broadcast.DeleteEvent(types.EventDeleteView, id), entry)
	return nil
}
