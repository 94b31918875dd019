package pads

import (
	"context"

	"github.com/google/uuid"

	"github.com/padsync/padsync/internal/broadcast"
	syncerrors "github.com/padsync/padsync/internal/errors"
	"github.com/padsync/padsync/internal/padstore"
	"github.com/padsync/padsync/pkg/types"
)

// GetMarker returns one marker of the pad.
func (s *Service) GetMarker(ctx context.Context, padID, id string) (*types.Marker, error) {
	return s.store.GetMarker(ctx, padID, id)
}

// AddMarker creates a marker on the pad and fans it out.
func (s *Service) AddMarker(ctx context.Context, perm types.Permission, padID string, m *types.Marker) (*types.Marker, error) {
	if err := requireWrite(perm); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, syncerrors.NewValidationError(syncerrors.CodeInvalidObject, "invalid marker", err)
	}

	m.PadID = padID
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	unlock := s.lockPad(padID)
	defer unlock()

	entry := &types.HistoryEntry{
		PadID:      padID,
		ObjectKind: types.KindMarker,
		ObjectID:   m.ID,
		Action:     types.ActionCreate,
	}
	err := s.store.InTx(ctx, func(tx padstore.DBTX) error {
		if err := s.store.CreateMarker(ctx, tx, m); err != nil {
			return err
		}
		return s.hist.Append(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.publishMutation(padID, broadcast.UpsertEvent(types.EventMarker, m), entry)
	return m, nil
}

// EditMarker replaces a marker's fields. Last write wins: the update is the
// writer's full view of the object, so fields omitted from its own read are
// silently overwritten without conflict detection.
func (s *Service) EditMarker(ctx context.Context, perm types.Permission, padID string, m *types.Marker) (*types.Marker, error) {
	if err := requireWrite(perm); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, syncerrors.NewValidationError(syncerrors.CodeInvalidObject, "invalid marker", err)
	}

	m.PadID = padID

	unlock := s.lockPad(padID)
	defer unlock()

	prev, err := s.store.GetMarker(ctx, padID, m.ID)
	if err != nil {
		return nil, err
	}
	snapshot, err := snapshotJSON(prev)
	if err != nil {
		return nil, err
	}

	entry := &types.HistoryEntry{
		PadID:      padID,
		ObjectKind: types.KindMarker,
		ObjectID:   m.ID,
		Action:     types.ActionUpdate,
		Snapshot:   snapshot,
	}
	err = s.store.InTx(ctx, func(tx padstore.DBTX) error {
		if err := s.store.UpdateMarker(ctx, tx, m); err != nil {
			return err
		}
		return s.hist.Append(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.publishMutation(padID, broadcast.UpsertEvent(types.EventMarker, m), entry)
	return m, nil
}

// DeleteMarker removes a marker and fans the deletion out.
func (s *Service) DeleteMarker(ctx context.Context, perm types.Permission, padID, id string) error {
	if err := requireWrite(perm); err != nil {
		return err
	}

	unlock := s.lockPad(padID)
	defer unlock()

	prev, err := s.store.GetMarker(ctx, padID, id)
	if err != nil {
		return err
	}
	snapshot, err := snapshotJSON(prev)
	if err != nil {
		return err
	}

	entry := &types.HistoryEntry{
		PadID:      padID,
		ObjectKind: types.KindMarker,
		ObjectID:   id,
		Action:     types.ActionDelete,
		Snapshot:   snapshot,
	}
	err = s.store.InTx(ctx, func(tx padstore.DBTX) error {
		if err := s.store.DeleteMarker(ctx, tx, padID, id); err != nil {
			return err
		}
		return s.hist.Append(ctx, tx, entry)
	})
	if err != nil {
		return err
	}

	s.publishMutation(padID, broadcast.DeleteEvent(types.EventDeleteMarker, id), entry)
	return nil
}
