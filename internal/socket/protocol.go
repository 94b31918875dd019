// Package socket exposes the sync core over a websocket endpoint. Each
// connection runs a session that multiplexes JSON request/response pairs
// with server-pushed mutation events on one socket.
package socket

import (
	"encoding/json"
	"errors"

	syncerrors "github.com/padsync/padsync/internal/errors"
)

// Request names accepted by a session.
const (
	reqSetPadID               = "setPadId"
	reqUpdateBbox             = "updateBbox"
	reqCreatePad              = "createPad"
	reqGetPad                 = "getPad"
	reqEditPad                = "editPad"
	reqDeletePad              = "deletePad"
	reqAddMarker              = "addMarker"
	reqEditMarker             = "editMarker"
	reqDeleteMarker           = "deleteMarker"
	reqGetMarker              = "getMarker"
	reqAddLine                = "addLine"
	reqEditLine               = "editLine"
	reqDeleteLine             = "deleteLine"
	reqGetLineTemplate        = "getLineTemplate"
	reqExportLine             = "exportLine"
	reqAddView                = "addView"
	reqEditView               = "editView"
	reqDeleteView             = "deleteView"
	reqAddType                = "addType"
	reqEditType               = "editType"
	reqDeleteType             = "deleteType"
	reqListenToHistory        = "listenToHistory"
	reqStopListeningToHistory = "stopListeningToHistory"
	reqRevertHistoryEntry     = "revertHistoryEntry"
)

// Message is the wire frame. A request carries ID, Name and Data; its
// response echoes the ID with either Data or Error. Server pushes carry
// Name and Data with no ID.
type Message struct {
	ID    *int64          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *WireError      `json:"error,omitempty"`
}

// WireError is the serialized form of a failed request.
type WireError struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// wireError maps an error to its wire form, preserving category and code
// for structured errors and hiding internal detail for anything else.
func wireError(err error) *WireError {
	var se *syncerrors.SyncError
	if errors.As(err, &se) {
		return &WireError{
			Category: string(se.Category),
			Code:     se.Code,
			Message:  se.Message,
		}
	}
	return &WireError{
		Category: string(syncerrors.ErrCategoryInternal),
		Code:     syncerrors.CodeUnexpected,
		Message:  "internal error",
	}
}

// response builds a success reply for a request id. The payload is
// marshalled here so handler code stays on typed values.
func response(id int64, payload any) (Message, error) {
	msg := Message{ID: &id}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Message{}, err
		}
		msg.Data = raw
	}
	return msg, nil
}

// errorResponse builds a failure reply for a request id.
func errorResponse(id int64, err error) Message {
	return Message{ID: &id, Error: wireError(err)}
}

// push builds a server-initiated event message.
func push(name string, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Name: name, Data: raw}, nil
}
