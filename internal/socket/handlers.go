package socket

import (
	"context"
	"encoding/json"
	"log"

	syncerrors "github.com/padsync/padsync/internal/errors"
	"github.com/padsync/padsync/pkg/types"
)

// dispatch routes one request frame to its handler and queues the reply.
func (s *session) dispatch(ctx context.Context, id int64, name string, data json.RawMessage) {
	payload, err := s.handle(ctx, name, data)
	if err != nil {
		s.send(errorResponse(id, err))
		return
	}
	msg, err := response(id, payload)
	if err != nil {
		log.Printf("socket: marshal %s response: %v", name, err)
		s.send(errorResponse(id, syncerrors.NewInternalError("marshal response", err)))
		return
	}
	s.send(msg)
}

func (s *session) handle(ctx context.Context, name string, data json.RawMessage) (any, error) {
	switch name {
	case reqCreatePad:
		return s.handleCreatePad(ctx, data)
	case reqSetPadID:
		return s.handleSetPadID(ctx, data)
	case reqUpdateBbox:
		return s.handleUpdateBbox(ctx, data)
	}

	// Everything below requires an attached pad.
	pad, perm := s.attachment()
	if pad == nil {
		return nil, syncerrors.NewNotFoundError(syncerrors.CodePadNotFound, "no pad attached")
	}

	switch name {
	case reqGetPad:
		return pad.StripTokens(perm), nil

	case reqEditPad:
		var update types.Pad
		if err := unmarshal(data, &update); err != nil {
			return nil, err
		}
		next, err := s.svc.EditPad(ctx, perm, pad.ID, &update)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.pad = next
		s.mu.Unlock()
		return next.StripTokens(perm), nil

	case reqDeletePad:
		return nil, s.svc.DeletePad(ctx, perm, pad.ID)

	case reqAddMarker:
		var m types.Marker
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		return s.svc.AddMarker(ctx, perm, pad.ID, &m)

	case reqEditMarker:
		var m types.Marker
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		return s.svc.EditMarker(ctx, perm, pad.ID, &m)

	case reqDeleteMarker:
		var ref objectRef
		if err := unmarshal(data, &ref); err != nil {
			return nil, err
		}
		return nil, s.svc.DeleteMarker(ctx, perm, pad.ID, ref.ID)

	case reqGetMarker:
		var ref objectRef
		if err := unmarshal(data, &ref); err != nil {
			return nil, err
		}
		return s.svc.GetMarker(ctx, pad.ID, ref.ID)

	case reqAddLine:
		var l types.Line
		if err := unmarshal(data, &l); err != nil {
			return nil, err
		}
		return s.svc.AddLine(ctx, perm, pad.ID, &l)

	case reqEditLine:
		var l types.Line
		if err := unmarshal(data, &l); err != nil {
			return nil, err
		}
		return s.svc.EditLine(ctx, perm, pad.ID, &l)

	case reqDeleteLine:
		var ref objectRef
		if err := unmarshal(data, &ref); err != nil {
			return nil, err
		}
		return nil, s.svc.DeleteLine(ctx, perm, pad.ID, ref.ID)

	case reqGetLineTemplate:
		var req lineTemplateRequest
		if err := unmarshal(data, &req); err != nil {
			return nil, err
		}
		return s.svc.LineTemplate(ctx, pad.ID, req.TypeID)

	case reqExportLine:
		var ref objectRef
		if err := unmarshal(data, &ref); err != nil {
			return nil, err
		}
		points, err := s.svc.ExportLinePoints(ctx, pad.ID, ref.ID)
		if err != nil {
			return nil, err
		}
		return types.LinePointsPayload{ID: ref.ID, TrackPoints: points, Reset: true}, nil

	case reqAddView:
		var v types.View
		if err := unmarshal(data, &v); err != nil {
			return nil, err
		}
		return s.svc.AddView(ctx, perm, pad.ID, &v)

	case reqEditView:
		var v types.View
		if err := unmarshal(data, &v); err != nil {
			return nil, err
		}
		return s.svc.EditView(ctx, perm, pad.ID, &v)

	case reqDeleteView:
		var ref objectRef
		if err := unmarshal(data, &ref); err != nil {
			return nil, err
		}
		return nil, s.svc.DeleteView(ctx, perm, pad.ID, ref.ID)

	case reqAddType:
		var t types.Type
		if err := unmarshal(data, &t); err != nil {
			return nil, err
		}
		return s.svc.AddType(ctx, perm, pad.ID, &t)

	case reqEditType:
		var t types.Type
		if err := unmarshal(data, &t); err != nil {
			return nil, err
		}
		return s.svc.EditType(ctx, perm, pad.ID, &t)

	case reqDeleteType:
		var ref objectRef
		if err := unmarshal(data, &ref); err != nil {
			return nil, err
		}
		return nil, s.svc.DeleteType(ctx, perm, pad.ID, ref.ID)

	case reqListenToHistory:
		entries, err := s.svc.HistoryEntries(ctx, pad.ID)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.listening = true
		s.mu.Unlock()
		return entries, nil

	case reqStopListeningToHistory:
		s.mu.Lock()
		s.listening = false
		s.mu.Unlock()
		return nil, nil

	case reqRevertHistoryEntry:
		var ref objectRef
		if err := unmarshal(data, &ref); err != nil {
			return nil, err
		}
		return nil, s.svc.RevertHistoryEntry(ctx, perm, pad.ID, ref.ID)

	default:
		return nil, syncerrors.NewValidationError(syncerrors.CodeInvalidObject, "unknown request "+name, nil)
	}
}

func (s *session) handleCreatePad(ctx context.Context, data json.RawMessage) (any, error) {
	var pad types.Pad
	if len(data) > 0 {
		if err := unmarshal(data, &pad); err != nil {
			return nil, err
		}
	}
	created, err := s.svc.CreatePad(ctx, &pad)
	if err != nil {
		return nil, err
	}

	// The creator holds the admin token and is attached immediately.
	s.attach(created, types.PermissionAdmin)
	s.sendInitialState(ctx, created, types.PermissionAdmin)
	return created, nil
}

func (s *session) handleSetPadID(ctx context.Context, data json.RawMessage) (any, error) {
	var req setPadIDRequest
	if err := unmarshal(data, &req); err != nil {
		return nil, err
	}
	pad, perm, err := s.svc.PadByToken(ctx, req.PadID)
	if err != nil {
		return nil, err
	}

	s.attach(pad, perm)
	s.sendInitialState(ctx, pad, perm)
	return pad.StripTokens(perm), nil
}

func (s *session) handleUpdateBbox(ctx context.Context, data json.RawMessage) (any, error) {
	pad, _ := s.attachment()
	if pad == nil {
		return nil, syncerrors.NewNotFoundError(syncerrors.CodePadNotFound, "no pad attached")
	}

	var bbox types.BboxWithZoom
	if err := unmarshal(data, &bbox); err != nil {
		return nil, err
	}

	if err := s.vp.SetViewport(ctx, bbox, fillHandler{s}); err != nil {
		return nil, err
	}

	applied := *s.vp.Viewport()
	s.mu.Lock()
	s.view = &applied
	s.mu.Unlock()
	return nil, nil
}

// setPadIDRequest carries the capability token presented on attach.
type setPadIDRequest struct {
	PadID string `json:"padId"`
}

// objectRef identifies the target of delete/get style requests.
type objectRef struct {
	ID string `json:"id"`
}

type lineTemplateRequest struct {
	TypeID string `json:"typeId"`
}

func unmarshal(data json.RawMessage, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return syncerrors.NewValidationError(syncerrors.CodeInvalidObject, "malformed request payload", err)
	}
	return nil
}
