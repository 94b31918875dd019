package pads

import (
	"context"

	"github.com/google/uuid"

	"github.com/padsync/padsync/internal/broadcast"
	syncerrors "github.com/padsync/padsync/internal/errors"
	"github.com/padsync/padsync/internal/padstore"
	"github.com/padsync/padsync/pkg/types"
)

// AddType creates a marker or line type on the pad. Admin only.
func (s *Service) AddType(ctx context.Context, perm types.Permission, padID string, t *types.Type) (*types.Type, error) {
	if err := requireAdmin(perm); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, syncerrors.NewValidationError(syncerrors.CodeDuplicateField, "invalid type", err)
	}

	t.PadID = padID
	if t.ID == "" {
		t.ID = uuid.New().String()
	}

	unlock := s.lockPad(padID)
	defer unlock()

	entry := &types.HistoryEntry{
		PadID:      padID,
		ObjectKind: types.KindType,
		ObjectID:   t.ID,
		Action:     types.ActionCreate,
	}
	err := s.store.InTx(ctx, func(tx padstore.DBTX) error {
		if err := s.store.CreateType(ctx, tx, t); err != nil {
			return err
		}
		return s.hist.Append(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.publishMutation(padID, broadcast.UpsertEvent(types.EventType, t), entry)
	return t, nil
}

// EditType replaces a type's fields. Admin only. Objects referencing the
// type keep their data; clients re-validate against the new field set.
func (s *Service) EditType(ctx context.Context, perm types.Permission, padID string, t *types.Type) (*types.Type, error) {
	if err := requireAdmin(perm); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, syncerrors.NewValidationError(syncerrors.CodeDuplicateField, "invalid type", err)
	}

	t.PadID = padID

	unlock := s.lockPad(padID)
	defer unlock()

	prev, err := s.store.GetType(ctx, padID, t.ID)
	if err != nil {
		return nil, err
	}
	snapshot, err := snapshotJSON(prev)
	if err != nil {
		return nil, err
	}

	entry := &types.HistoryEntry{
		PadID:      padID,
		ObjectKind: types.KindType,
		ObjectID:   t.ID,
		Action:     types.ActionUpdate,
		Snapshot:   snapshot,
	}
	err = s.store.InTx(ctx, func(tx padstore.DBTX) error {
		if err := s.store.UpdateType(ctx, tx, t); err != nil {
			return err
		}
		return s.hist.Append(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.publishMutation(padID, broadcast.UpsertEvent(types.EventType, t), entry)
	return t, nil
}

// DeleteType removes a type. Rejected while any marker or line still
// references it. Admin only.
func (s *Service) DeleteType(ctx context.Context, perm types.Permission, padID, id string) error {
	if err := requireAdmin(perm); err != nil {
		return err
	}

	unlock := s.lockPad(padID)
	defer unlock()

	prev, err := s.store.GetType(ctx, padID, id)
	if err != nil {
		return err
	}

	inUse, err := s.store.TypeInUse(ctx, padID, id)
	if err != nil {
		return err
	}
	if inUse {
		return syncerrors.NewValidationError(syncerrors.CodeTypeInUse, "type is still referenced by objects", nil)
	}

	snapshot, err := snapshotJSON(prev)
	if err != nil {
		return err
	}
	entry := &types.HistoryEntry{
		PadID:      padID,
		ObjectKind: types.KindType,
		ObjectID:   id,
		Action:     types.ActionDelete,
		Snapshot:   snapshot,
	}
	err = s.store.InTx(ctx, func(tx padstore.DBTX) error {
		if err := s.store.DeleteType(ctx, tx, padID, id); err != nil {
			return err
		}
		return s.hist.Append(ctx, tx, entry)
	})
	if err != nil {
		return err
	}

	s.publishMutation(padID, broadcast.DeleteEvent(types.EventDeleteType, id), entry)
	return nil
}
