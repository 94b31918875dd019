// Package padstore provides persistence for pads and their objects
// (markers, lines, views, types) behind an abstract store interface.
//
// Mutating methods take a DBTX so the caller can run an object write and its
// history append in one transaction: a mutation whose history append fails
// rolls back entirely.
package padstore

import (
	"context"
	"database/sql"

	"github.com/padsync/padsync/pkg/types"
)

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the persistence interface consumed by the sync core.
type Store interface {
	// InTx runs fn inside a single write transaction. The transaction is
	// rolled back if fn returns an error.
	InTx(ctx context.Context, fn func(tx DBTX) error) error

	// Pads
	CreatePad(ctx context.Context, tx DBTX, pad *types.Pad) error
	UpdatePad(ctx context.Context, tx DBTX, pad *types.Pad) error
	DeletePad(ctx context.Context, tx DBTX, padID string) error
	GetPad(ctx context.Context, padID string) (*types.Pad, error)
	// PadByToken resolves a capability token to its pad and the permission
	// level the token grants.
	PadByToken(ctx context.Context, token string) (*types.Pad, types.Permission, error)
	Pads(ctx context.Context) ([]*types.Pad, error)

	// Markers
	CreateMarker(ctx context.Context, tx DBTX, m *types.Marker) error
	UpdateMarker(ctx context.Context, tx DBTX, m *types.Marker) error
	DeleteMarker(ctx context.Context, tx DBTX, padID, id string) error
	GetMarker(ctx context.Context, padID, id string) (*types.Marker, error)
	// MarkersInBbox returns the pad's markers inside the viewport,
	// honoring antimeridian wrap and the Except exclusion.
	MarkersInBbox(ctx context.Context, padID string, bbox types.BboxWithZoom) ([]*types.Marker, error)
	MarkersForPad(ctx context.Context, padID string) ([]*types.Marker, error)

	// Lines
	CreateLine(ctx context.Context, tx DBTX, l *types.Line) error
	UpdateLine(ctx context.Context, tx DBTX, l *types.Line) error
	DeleteLine(ctx context.Context, tx DBTX, padID, id string) error
	GetLine(ctx context.Context, padID, id string) (*types.Line, error)
	LinesForPad(ctx context.Context, padID string) ([]*types.Line, error)
	// LineBboxesInBbox returns the pad's lines whose cached bounding box
	// intersects the viewport; stage one of the two-stage line fill.
	LineBboxesInBbox(ctx context.Context, padID string, bbox types.BboxWithZoom) ([]*types.Line, error)

	// Views
	CreateView(ctx context.Context, tx DBTX, v *types.View) error
	UpdateView(ctx context.Context, tx DBTX, v *types.View) error
	DeleteView(ctx context.Context, tx DBTX, padID, id string) error
	GetView(ctx context.Context, padID, id string) (*types.View, error)
	ViewsForPad(ctx context.Context, padID string) ([]*types.View, error)

	// Types
	CreateType(ctx context.Context, tx DBTX, t *types.Type) error
	UpdateType(ctx context.Context, tx DBTX, t *types.Type) error
	DeleteType(ctx context.Context, tx DBTX, padID, id string) error
	GetType(ctx context.Context, padID, id string) (*types.Type, error)
	TypesForPad(ctx context.Context, padID string) ([]*types.Type, error)
	// TypeInUse reports whether any marker or line still references the type.
	TypeInUse(ctx context.Context, padID, typeID string) (bool, error)

	Close() error
}
