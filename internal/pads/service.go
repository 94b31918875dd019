// Package pads orchestrates the mutation pipeline of the sync core: every
// write is serialized on its pad, validated, persisted together with its
// history entry in one transaction, and then fanned out to the pad's
// subscribers. Errors never partially broadcast — persistence, history
// append and broadcast succeed or are skipped together.
package pads

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"

	"github.com/padsync/padsync/internal/broadcast"
	syncerrors "github.com/padsync/padsync/internal/errors"
	"github.com/padsync/padsync/internal/geometry"
	"github.com/padsync/padsync/internal/history"
	"github.com/padsync/padsync/internal/padstore"
	"github.com/padsync/padsync/internal/registry"
	"github.com/padsync/padsync/internal/route"
	"github.com/padsync/padsync/pkg/types"
)

// Service coordinates stores, history, registry and broadcast for all pad
// operations invoked by connections.
type Service struct {
	store  padstore.Store
	geom   *geometry.Store
	hist   *history.Log
	bus    *broadcast.Broadcaster
	reg    *registry.Registry
	router route.Service

	// dirty, when set, marks a pad for the backup daemon after each
	// successful mutation.
	dirty func(padID string)
}

// NewService wires a pad service.
func NewService(store padstore.Store, geom *geometry.Store, hist *history.Log, bus *broadcast.Broadcaster, reg *registry.Registry, router route.Service) *Service {
	if router == nil {
		router = route.StraightLine{}
	}
	return &Service{
		store:  store,
		geom:   geom,
		hist:   hist,
		bus:    bus,
		reg:    reg,
		router: router,
	}
}

// SetDirtyHook registers the backup daemon's dirty-pad callback.
func (s *Service) SetDirtyHook(fn func(padID string)) {
	s.dirty = fn
}

// Store returns the underlying pad store, used by the viewport fill.
func (s *Service) Store() padstore.Store {
	return s.store
}

// Geometry returns the underlying geometry store, used by the viewport fill.
func (s *Service) Geometry() *geometry.Store {
	return s.geom
}

// Broadcaster returns the mutation fan-out bus for subscribing connections.
func (s *Service) Broadcaster() *broadcast.Broadcaster {
	return s.bus
}

// Registry returns the live pad registry for attach/detach bookkeeping.
func (s *Service) Registry() *registry.Registry {
	return s.reg
}

// lockPad acquires the pad's serialization point. The returned release
// function unlocks it and drops the registry reference.
func (s *Service) lockPad(padID string) func() {
	state := s.reg.Acquire(padID)
	state.Lock()
	return func() {
		state.Unlock()
		s.reg.Release(padID)
	}
}

// markDirty notifies the backup daemon, if one is attached.
func (s *Service) markDirty(padID string) {
	if s.dirty != nil {
		s.dirty(padID)
	}
}

func requireWrite(perm types.Permission) error {
	if perm < types.PermissionWrite {
		return syncerrors.NewPermissionError(syncerrors.CodeReadOnly, "pad opened read-only")
	}
	return nil
}

func requireAdmin(perm types.Permission) error {
	if perm < types.PermissionAdmin {
		return syncerrors.NewPermissionError(syncerrors.CodeAdminRequired, "admin access required")
	}
	return nil
}

// snapshotJSON serializes an object's pre-mutation state for a history
// entry.
func snapshotJSON(obj any) (json.RawMessage, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, syncerrors.NewInternalError("marshal history snapshot", err)
	}
	return raw, nil
}

// appendAndPublish writes the history entry in tx-scope via fn's caller and,
// after commit, publishes the mutation event plus the history event. It is a
// helper for the common "tx already committed" tail of every mutation.
func (s *Service) publishMutation(padID string, ev broadcast.Event, entry *types.HistoryEntry) {
	s.bus.Publish(padID, ev)
	s.bus.Publish(padID, broadcast.Event{Name: types.EventHistory, Data: entry})
	s.markDirty(padID)
}

// --- Pad operations ---

// PadByToken resolves a capability token to its pad and permission level.
func (s *Service) PadByToken(ctx context.Context, token string) (*types.Pad, types.Permission, error) {
	return s.store.PadByToken(ctx, token)
}

// CreatePad creates a new pad. Missing tokens and ids are generated.
func (s *Service) CreatePad(ctx context.Context, pad *types.Pad) (*types.Pad, error) {
	if pad == nil {
		pad = &types.Pad{}
	}
	if pad.ID == "" {
		pad.ID = uuid.New().String()
	}
	if pad.ReadID == "" {
		pad.ReadID = uuid.New().String()
	}
	if pad.WriteID == "" {
		pad.WriteID = uuid.New().String()
	}
	if pad.AdminID == "" {
		pad.AdminID = uuid.New().String()
	}
	if err := pad.ValidateTokens(); err != nil {
		return nil, syncerrors.NewValidationError(syncerrors.CodeInvalidTokens, "invalid pad tokens", err)
	}

	entry := &types.HistoryEntry{
		PadID:      pad.ID,
		ObjectKind: types.KindPad,
		ObjectID:   pad.ID,
		Action:     types.ActionCreate,
	}
	err := s.store.InTx(ctx, func(tx padstore.DBTX) error {
		if err := s.store.CreatePad(ctx, tx, pad); err != nil {
			return err
		}
		return s.hist.Append(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	return pad, nil
}

// EditPad updates the pad's metadata. Token rotation requires the incoming
// tokens to remain distinct and non-empty. Admin only.
func (s *Service) EditPad(ctx context.Context, perm types.Permission, padID string, update *types.Pad) (*types.Pad, error) {
	if err := requireAdmin(perm); err != nil {
		return nil, err
	}

	unlock := s.lockPad(padID)
	defer unlock()

	prev, err := s.store.GetPad(ctx, padID)
	if err != nil {
		return nil, err
	}

	next := *prev
	next.Name = update.Name
	next.Description = update.Description
	next.DefaultViewID = update.DefaultViewID
	if update.ReadID != "" {
		next.ReadID = update.ReadID
	}
	if update.WriteID != "" {
		next.WriteID = update.WriteID
	}
	if update.AdminID != "" {
		next.AdminID = update.AdminID
	}
	if err := next.ValidateTokens(); err != nil {
		return nil, syncerrors.NewValidationError(syncerrors.CodeInvalidTokens, "invalid pad tokens", err)
	}
	if next.DefaultViewID != "" {
		if _, err := s.store.GetView(ctx, padID, next.DefaultViewID); err != nil {
			return nil, err
		}
	}

	snapshot, err := snapshotJSON(prev)
	if err != nil {
		return nil, err
	}
	entry := &types.HistoryEntry{
		PadID:      padID,
		ObjectKind: types.KindPad,
		ObjectID:   padID,
		Action:     types.ActionUpdate,
		Snapshot:   snapshot,
	}
	err = s.store.InTx(ctx, func(tx padstore.DBTX) error {
		if err := s.store.UpdatePad(ctx, tx, &next); err != nil {
			return err
		}
		return s.hist.Append(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.publishMutation(padID, broadcast.UpsertEvent(types.EventPadData, &next), entry)
	return &next, nil
}

// DeletePad removes the pad and everything it owns. Admin only. The delete
// is final: no history survives it, and subscribers receive a deletePad
// event as their last.
func (s *Service) DeletePad(ctx context.Context, perm types.Permission, padID string) error {
	if err := requireAdmin(perm); err != nil {
		return err
	}

	unlock := s.lockPad(padID)
	defer unlock()

	err := s.store.InTx(ctx, func(tx padstore.DBTX) error {
		return s.store.DeletePad(ctx, tx, padID)
	})
	if err != nil {
		return err
	}

	// Once the pad rows are gone its geometry is unreachable, so cleanup
	// failure must not suppress the deletePad broadcast.
	if err := s.geom.DeletePad(ctx, padID); err != nil {
		log.Printf("pads: delete pad %s geometry: %v", padID, err)
	}

	s.bus.Publish(padID, broadcast.DeleteEvent(types.EventDeletePad, padID))
	s.markDirty(padID)
	return nil
}
