package types

import (
	"encoding/json"
	"time"
)

// Permission is the access level a connection holds on a pad, determined by
// which capability token it presented when attaching.
type Permission int

const (
	PermissionRead  Permission = 0
	PermissionWrite Permission = 1
	PermissionAdmin Permission = 2
)

// Pad is a shared map document identified by three capability tokens.
type Pad struct {
	// ID is the internal pad identifier; never exposed as a capability.
	ID string `json:"id"`

	// ReadID grants read-only access
	ReadID string `json:"readId"`
	// WriteID grants read-write access
	WriteID string `json:"writeId,omitempty"`
	// AdminID grants full control including type/view management and token rotation
	AdminID string `json:"adminId,omitempty"`

	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// DefaultViewID references the pad's default view, if any. At most one
	// view per pad is the default.
	DefaultViewID string `json:"defaultViewId,omitempty"`
}

// ValidateTokens enforces that the three tokens are distinct non-empty strings.
func (p *Pad) ValidateTokens() error {
	if p.ReadID == "" || p.WriteID == "" || p.AdminID == "" {
		return ErrBadTokens
	}
	if p.ReadID == p.WriteID || p.ReadID == p.AdminID || p.WriteID == p.AdminID {
		return ErrBadTokens
	}
	return nil
}

// StripTokens returns a copy of the pad with only the tokens the given
// permission level is allowed to see.
func (p *Pad) StripTokens(perm Permission) *Pad {
	cp := *p
	if perm < PermissionAdmin {
		cp.AdminID = ""
	}
	if perm < PermissionWrite {
		cp.WriteID = ""
	}
	return &cp
}

// Marker is a point object on a pad.
type Marker struct {
	ID     string  `json:"id"`
	PadID  string  `json:"padId"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Name   string  `json:"name"`
	Colour string  `json:"colour"`
	Size   int     `json:"size"`
	TypeID string  `json:"typeId"`

	// Data holds the free-form custom fields, validated against the Type.
	Data map[string]string `json:"data,omitempty"`
}

// Validate checks the marker's field constraints.
func (m *Marker) Validate() error {
	if m.Lat < -90 || m.Lat > 90 {
		return ErrLatOutOfRange
	}
	if m.Lon < -180 || m.Lon > 180 {
		return ErrLonOutOfRange
	}
	return nil
}

// RoutingMode selects how a line's geometry is derived from its route points.
type RoutingMode string

const (
	ModeNone       RoutingMode = ""
	ModeCar        RoutingMode = "car"
	ModeBicycle    RoutingMode = "bicycle"
	ModePedestrian RoutingMode = "pedestrian"
	ModeTrack      RoutingMode = "track"
)

// Line is a polyline object on a pad. Its rendered geometry (track points)
// lives in the geometry store; the line row carries the user-drawn route
// points plus a cached bounding box for fast bbox pre-filtering.
type Line struct {
	ID     string      `json:"id"`
	PadID  string      `json:"padId"`
	Name   string      `json:"name"`
	TypeID string      `json:"typeId"`
	Mode   RoutingMode `json:"mode"`

	// RoutePoints are the user-drawn control points, minimum length 2.
	RoutePoints []Point `json:"routePoints"`

	Colour string `json:"colour"`
	Width  int    `json:"width"`

	// Computed route metadata.
	Distance float64 `json:"distance"`
	Time     int     `json:"time,omitempty"`
	Ascent   int     `json:"ascent,omitempty"`
	Descent  int     `json:"descent,omitempty"`

	// Bounds is the cached bounding box of the full geometry.
	Bounds Bbox `json:"bounds"`

	Data map[string]string `json:"data,omitempty"`
}

// Validate checks the line's field constraints.
func (l *Line) Validate() error {
	if len(l.RoutePoints) < 2 {
		return ErrTooFewRoutePoints
	}
	for _, p := range l.RoutePoints {
		if p.Lat < -90 || p.Lat > 90 {
			return ErrLatOutOfRange
		}
		if p.Lon < -180 || p.Lon > 180 {
			return ErrLonOutOfRange
		}
	}
	return nil
}

// View is a named saved viewport belonging to a pad.
type View struct {
	ID        string   `json:"id"`
	PadID     string   `json:"padId"`
	Name      string   `json:"name"`
	Bounds    Bbox     `json:"bounds"`
	BaseLayer string   `json:"baseLayer"`
	Layers    []string `json:"layers,omitempty"`
}

// ObjectKind distinguishes marker types from line types and classifies
// history entries.
type ObjectKind string

const (
	KindPad    ObjectKind = "pad"
	KindMarker ObjectKind = "marker"
	KindLine   ObjectKind = "line"
	KindView   ObjectKind = "view"
	KindType   ObjectKind = "type"
)

// FieldKind is the input widget kind of a custom field.
type FieldKind string

const (
	FieldInput    FieldKind = "input"
	FieldTextarea FieldKind = "textarea"
	FieldDropdown FieldKind = "dropdown"
	FieldCheckbox FieldKind = "checkbox"
)

// Field is one custom field declared by a Type.
type Field struct {
	Name    string    `json:"name"`
	Kind    FieldKind `json:"kind"`
	Default string    `json:"default,omitempty"`
	Options []string  `json:"options,omitempty"`

	// ControlColour / ControlWidth mark the field whose value drives the
	// object's colour or line width.
	ControlColour bool `json:"controlColour,omitempty"`
	ControlWidth  bool `json:"controlWidth,omitempty"`
}

// Type is a schema for marker or line custom fields belonging to a pad.
type Type struct {
	ID         string     `json:"id"`
	PadID      string     `json:"padId"`
	Name       string     `json:"name"`
	ObjectKind ObjectKind `json:"objectKind"`
	Fields     []Field    `json:"fields"`
}

// Validate checks that field names are unique within the type.
func (t *Type) Validate() error {
	seen := make(map[string]struct{}, len(t.Fields))
	for _, f := range t.Fields {
		if _, ok := seen[f.Name]; ok {
			return ErrDuplicateField
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// HistoryAction is the kind of mutation a history entry records.
type HistoryAction string

const (
	ActionCreate HistoryAction = "create"
	ActionUpdate HistoryAction = "update"
	ActionDelete HistoryAction = "delete"
)

// HistoryEntry is an immutable record of one mutation. Entries are
// append-only; the oldest may be pruned beyond the retention bound.
type HistoryEntry struct {
	// ID is a time-ordered ULID string, so entries sort chronologically.
	ID         string        `json:"id"`
	PadID      string        `json:"padId"`
	ObjectKind ObjectKind    `json:"objectKind"`
	ObjectID   string        `json:"objectId"`
	Action     HistoryAction `json:"action"`

	// Snapshot is the object state before the mutation (nil for create).
	Snapshot json.RawMessage `json:"snapshot,omitempty"`

	Time time.Time `json:"time"`
}
