package types

// Push event names shared by the broadcaster, the socket layer and the
// client-side reconciler.
const (
	EventPadData      = "padData"
	EventDeletePad    = "deletePad"
	EventMarker       = "marker"
	EventDeleteMarker = "deleteMarker"
	EventLine         = "line"
	EventDeleteLine   = "deleteLine"
	EventLinePoints   = "linePoints"
	EventView         = "view"
	EventDeleteView   = "deleteView"
	EventType         = "type"
	EventDeleteType   = "deleteType"
	EventHistory      = "history"
)

// LinePointsPayload is the payload of a linePoints event: a partial or full
// point update for one line. When Reset is set the receiver discards its
// held points for the line before merging.
type LinePointsPayload struct {
	ID          string       `json:"id"`
	TrackPoints []TrackPoint `json:"trackPoints"`
	Reset       bool         `json:"reset"`
}

// DeletePayload identifies the object removed by a delete* event.
type DeletePayload struct {
	ID string `json:"id"`
}
