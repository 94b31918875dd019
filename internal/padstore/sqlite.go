package padstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	syncerrors "github.com/padsync/padsync/internal/errors"
	"github.com/padsync/padsync/pkg/types"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool (concurrent readers)
	dbPath string
	mu     sync.Mutex // Write-only lock (reads don't need this)
}

// Open creates a new SQLite-based pad store.
func Open(dbPath string) (*SQLiteStore, error) {
	// Write connection: single writer with WAL mode
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("padstore: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // Single writer
	db.SetMaxIdleConns(1)

	// Read connection pool: concurrent readers
	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("padstore: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	s := &SQLiteStore{
		db:     db,
		readDB: readDB,
		dbPath: dbPath,
	}

	if err := s.initSchema(); err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("padstore: failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stmt := range schemaSQL() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// WriteDB exposes the write connection so collaborating components sharing
// the database file (the history log) can participate in transactions.
func (s *SQLiteStore) WriteDB() *sql.DB {
	return s.db
}

// ReadDB exposes the read pool for components sharing the database file.
func (s *SQLiteStore) ReadDB() *sql.DB {
	return s.readDB
}

// InTx runs fn inside a single write transaction.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx DBTX) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "begin transaction", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "commit transaction", err)
	}
	return nil
}

// Close closes the database connections.
func (s *SQLiteStore) Close() error {
	if err := s.readDB.Close(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}

// --- Pads ---

func (s *SQLiteStore) CreatePad(ctx context.Context, tx DBTX, pad *types.Pad) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO pads (id, read_id, write_id, admin_id, name, description, default_view_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pad.ID, pad.ReadID, pad.WriteID, pad.AdminID, pad.Name, pad.Description, pad.DefaultViewID,
	)
	if err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "insert pad", err)
	}
	return nil
}

func (s *SQLiteStore) UpdatePad(ctx context.Context, tx DBTX, pad *types.Pad) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE pads SET read_id = ?, write_id = ?, admin_id = ?, name = ?, description = ?, default_view_id = ?
		 WHERE id = ?`,
		pad.ReadID, pad.WriteID, pad.AdminID, pad.Name, pad.Description, pad.DefaultViewID, pad.ID,
	)
	if err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "update pad", err)
	}
	return requireRow(res, syncerrors.CodePadNotFound, "pad "+pad.ID)
}

func (s *SQLiteStore) DeletePad(ctx context.Context, tx DBTX, padID string) error {
	// Owned objects go with the pad.
	for _, table := range []string{"markers", "lines", "views", "object_types", "history"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE pad_id = ?", padID); err != nil {
			return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "delete pad objects", err)
		}
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM pads WHERE id = ?", padID)
	if err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "delete pad", err)
	}
	return requireRow(res, syncerrors.CodePadNotFound, "pad "+padID)
}

func (s *SQLiteStore) GetPad(ctx context.Context, padID string) (*types.Pad, error) {
	return s.scanPad(s.readDB.QueryRowContext(ctx,
		`SELECT id, read_id, write_id, admin_id, name, description, default_view_id
		 FROM pads WHERE id = ?`, padID))
}

func (s *SQLiteStore) PadByToken(ctx context.Context, token string) (*types.Pad, types.Permission, error) {
	pad, err := s.scanPad(s.readDB.QueryRowContext(ctx,
		`SELECT id, read_id, write_id, admin_id, name, description, default_view_id
		 FROM pads WHERE read_id = ? OR write_id = ? OR admin_id = ?`, token, token, token))
	if err != nil {
		return nil, types.PermissionRead, err
	}
	switch token {
	case pad.AdminID:
		return pad, types.PermissionAdmin, nil
	case pad.WriteID:
		return pad, types.PermissionWrite, nil
	default:
		return pad, types.PermissionRead, nil
	}
}

func (s *SQLiteStore) Pads(ctx context.Context) ([]*types.Pad, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT id, read_id, write_id, admin_id, name, description, default_view_id FROM pads`)
	if err != nil {
		return nil, syncerrors.NewStorageError(syncerrors.CodeReadFailed, "list pads", err)
	}
	defer rows.Close()

	var pads []*types.Pad
	for rows.Next() {
		var p types.Pad
		if err := rows.Scan(&p.ID, &p.ReadID, &p.WriteID, &p.AdminID, &p.Name, &p.Description, &p.DefaultViewID); err != nil {
			return nil, syncerrors.NewStorageError(syncerrors.CodeReadFailed, "scan pad", err)
		}
		pads = append(pads, &p)
	}
	return pads, rows.Err()
}

func (s *SQLiteStore) scanPad(row *sql.Row) (*types.Pad, error) {
	var p types.Pad
	err := row.Scan(&p.ID, &p.ReadID, &p.WriteID, &p.AdminID, &p.Name, &p.Description, &p.DefaultViewID)
	if err == sql.ErrNoRows {
		return nil, syncerrors.NewNotFoundError(syncerrors.CodePadNotFound, "pad not found")
	}
	if err != nil {
		return nil, syncerrors.NewStorageError(syncerrors.CodeReadFailed, "scan pad", err)
	}
	return &p, nil
}

// --- Markers ---

func (s *SQLiteStore) CreateMarker(ctx context.Context, tx DBTX, m *types.Marker) error {
	data, err := json.Marshal(orEmptyMap(m.Data))
	if err != nil {
		return syncerrors.NewInternalError("marshal marker data", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO markers (id, pad_id, lat, lon, name, colour, size, type_id, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.PadID, m.Lat, m.Lon, m.Name, m.Colour, m.Size, m.TypeID, string(data),
	)
	if err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "insert marker", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateMarker(ctx context.Context, tx DBTX, m *types.Marker) error {
	data, err := json.Marshal(orEmptyMap(m.Data))
	if err != nil {
		return syncerrors.NewInternalError("marshal marker data", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE markers SET lat = ?, lon = ?, name = ?, colour = ?, size = ?, type_id = ?, data = ?
		 WHERE id = ? AND pad_id = ?`,
		m.Lat, m.Lon, m.Name, m.Colour, m.Size, m.TypeID, string(data), m.ID, m.PadID,
	)
	if err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "update marker", err)
	}
	return requireRow(res, syncerrors.CodeObjectNotFound, "marker "+m.ID)
}

func (s *SQLiteStore) DeleteMarker(ctx context.Context, tx DBTX, padID, id string) error {
	res, err := tx.ExecContext(ctx, "DELETE FROM markers WHERE id = ? AND pad_id = ?", id, padID)
	if err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "delete marker", err)
	}
	return requireRow(res, syncerrors.CodeObjectNotFound, "marker "+id)
}

func (s *SQLiteStore) GetMarker(ctx context.Context, padID, id string) (*types.Marker, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT id, pad_id, lat, lon, name, colour, size, type_id, data
		 FROM markers WHERE id = ? AND pad_id = ?`, id, padID)
	m, err := scanMarker(row.Scan)
	if err == sql.ErrNoRows {
		return nil, syncerrors.NewNotFoundError(syncerrors.CodeObjectNotFound, "marker not found")
	}
	if err != nil {
		return nil, syncerrors.NewStorageError(syncerrors.CodeReadFailed, "scan marker", err)
	}
	return m, nil
}

func (s *SQLiteStore) MarkersInBbox(ctx context.Context, padID string, bbox types.BboxWithZoom) ([]*types.Marker, error) {
	// The latitude band prunes in SQL; longitude wrap and the Except
	// exclusion are evaluated in one place, the bbox type.
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT id, pad_id, lat, lon, name, colour, size, type_id, data
		 FROM markers WHERE pad_id = ? AND lat <= ? AND lat >= ?`,
		padID, bbox.Top, bbox.Bottom)
	if err != nil {
		return nil, syncerrors.NewStorageError(syncerrors.CodeReadFailed, "query markers", err)
	}
	defer rows.Close()

	var markers []*types.Marker
	for rows.Next() {
		m, err := scanMarker(rows.Scan)
		if err != nil {
			return nil, syncerrors.NewStorageError(syncerrors.CodeReadFailed, "scan marker", err)
		}
		if bbox.ContainsPosition(m.Lat, m.Lon) {
			markers = append(markers, m)
		}
	}
	return markers, rows.Err()
}

func (s *SQLiteStore) MarkersForPad(ctx context.Context, padID string) ([]*types.Marker, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT id, pad_id, lat, lon, name, colour, size, type_id, data
		 FROM markers WHERE pad_id = ?`, padID)
	if err != nil {
		return nil, syncerrors.NewStorageError(syncerrors.CodeReadFailed, "query markers", err)
	}
	defer rows.Close()

	var markers []*types.Marker
	for rows.Next() {
		m, err := scanMarker(rows.Scan)
		if err != nil {
			return nil, syncerrors.NewStorageError(syncerrors.CodeReadFailed, "scan marker", err)
		}
		markers = append(markers, m)
	}
	return markers, rows.Err()
}

func scanMarker(scan func(dest ...any) error) (*types.Marker, error) {
	var m types.Marker
	var data string
	if err := scan(&m.ID, &m.PadID, &m.Lat, &m.Lon, &m.Name, &m.Colour, &m.Size, &m.TypeID, &data); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &m.Data); err != nil {
		return nil, err
	}
	return &m, nil
}

// --- Lines ---

func (s *SQLiteStore) CreateLine(ctx context.Context, tx DBTX, l *types.Line) error {
	routePoints, data, err := marshalLineJSON(l)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO lines (id, pad_id, name, type_id, mode, route_points, colour, width,
			distance, time_sec, ascent, descent, bounds_top, bounds_bottom, bounds_left, bounds_right, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.PadID, l.Name, l.TypeID, string(l.Mode), routePoints, l.Colour, l.Width,
		l.Distance, l.Time, l.Ascent, l.Descent,
		l.Bounds.Top, l.Bounds.Bottom, l.Bounds.Left, l.Bounds.Right, data,
	)
	if err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "insert line", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateLine(ctx context.Context, tx DBTX, l *types.Line) error {
	routePoints, data, err := marshalLineJSON(l)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE lines SET name = ?, type_id = ?, mode = ?, route_points = ?, colour = ?, width = ?,
			distance = ?, time_sec = ?, ascent = ?, descent = ?,
			bounds_top = ?, bounds_bottom = ?, bounds_left = ?, bounds_right = ?, data = ?
		 WHERE id = ? AND pad_id = ?`,
		l.Name, l.TypeID, string(l.Mode), routePoints, l.Colour, l.Width,
		l.Distance, l.Time, l.Ascent, l.Descent,
		l.Bounds.Top, l.Bounds.Bottom, l.Bounds.Left, l.Bounds.Right, data,
		l.ID, l.PadID,
	)
	if err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "update line", err)
	}
	return requireRow(res, syncerrors.CodeObjectNotFound, "line "+l.ID)
}

func (s *SQLiteStore) DeleteLine(ctx context.Context, tx DBTX, padID, id string) error {
	res, err := tx.ExecContext(ctx, "DELETE FROM lines WHERE id = ? AND pad_id = ?", id, padID)
	if err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "delete line", err)
	}
	return requireRow(res, syncerrors.CodeObjectNotFound, "line "+id)
}

func (s *SQLiteStore) GetLine(ctx context.Context, padID, id string) (*types.Line, error) {
	row := s.readDB.QueryRowContext(ctx, selectLineSQL+" WHERE id = ? AND pad_id = ?", id, padID)
	l, err := scanLine(row.Scan)
	if err == sql.ErrNoRows {
		return nil, syncerrors.NewNotFoundError(syncerrors.CodeObjectNotFound, "line not found")
	}
	if err != nil {
		return nil, syncerrors.NewStorageError(syncerrors.CodeReadFailed, "scan line", err)
	}
	return l, nil
}

func (s *SQLiteStore) LinesForPad(ctx context.Context, padID string) ([]*types.Line, error) {
	return s.queryLines(ctx, selectLineSQL+" WHERE pad_id = ?", padID)
}

func (s *SQLiteStore) LineBboxesInBbox(ctx context.Context, padID string, bbox types.BboxWithZoom) ([]*types.Line, error) {
	lines, err := s.queryLines(ctx,
		selectLineSQL+" WHERE pad_id = ? AND bounds_bottom <= ? AND bounds_top >= ?",
		padID, bbox.Top, bbox.Bottom)
	if err != nil {
		return nil, err
	}
	var hits []*types.Line
	for _, l := range lines {
		if bbox.Intersects(l.Bounds) {
			hits = append(hits, l)
		}
	}
	return hits, nil
}

const selectLineSQL = `SELECT id, pad_id, name, type_id, mode, route_points, colour, width,
	distance, time_sec, ascent, descent, bounds_top, bounds_bottom, bounds_left, bounds_right, data
	FROM lines`

func (s *SQLiteStore) queryLines(ctx context.Context, query string, args ...any) ([]*types.Line, error) {
	rows, err := s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, syncerrors.NewStorageError(syncerrors.CodeReadFailed, "query lines", err)
	}
	defer rows.Close()

	var lines []*types.Line
	for rows.Next() {
		l, err := scanLine(rows.Scan)
		if err != nil {
			return nil, syncerrors.NewStorageError(syncerrors.CodeReadFailed, "scan line", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func marshalLineJSON(l *types.Line) (routePoints, data string, err error) {
	rp, err := json.Marshal(l.RoutePoints)
	if err != nil {
		return "", "", syncerrors.NewInternalError("marshal route points", err)
	}
	d, err := json.Marshal(orEmptyMap(l.Data))
	if err != nil {
		return "", "", syncerrors.NewInternalError("marshal line data", err)
	}
	return string(rp), string(d), nil
}

func scanLine(scan func(dest ...any) error) (*types.Line, error) {
	var l types.Line
	var mode, routePoints, data string
	err := scan(&l.ID, &l.PadID, &l.Name, &l.TypeID, &mode, &routePoints, &l.Colour, &l.Width,
		&l.Distance, &l.Time, &l.Ascent, &l.Descent,
		&l.Bounds.Top, &l.Bounds.Bottom, &l.Bounds.Left, &l.Bounds.Right, &data)
	if err != nil {
		return nil, err
	}
	l.Mode = types.RoutingMode(mode)
	if err := json.Unmarshal([]byte(routePoints), &l.RoutePoints); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &l.Data); err != nil {
		return nil, err
	}
	return &l, nil
}

// --- Views ---

func (s *SQLiteStore) CreateView(ctx context.Context, tx DBTX, v *types.View) error {
	layers, err := json.Marshal(orEmptySlice(v.Layers))
	if err != nil {
		return syncerrors.NewInternalError("marshal view layers", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO views (id, pad_id, name, bounds_top, bounds_bottom, bounds_left, bounds_right, base_layer, layers)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.PadID, v.Name, v.Bounds.Top, v.Bounds.Bottom, v.Bounds.Left, v.Bounds.Right, v.BaseLayer, string(layers),
	)
	if err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "insert view", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateView(ctx context.Context, tx DBTX, v *types.View) error {
	layers, err := json.Marshal(orEmptySlice(v.Layers))
	if err != nil {
		return syncerrors.NewInternalError("marshal view layers", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE views SET name = ?, bounds_top = ?, bounds_bottom = ?, bounds_left = ?, bounds_right = ?, base_layer = ?, layers = ?
		 WHERE id = ? AND pad_id = ?`,
		v.Name, v.Bounds.Top, v.Bounds.Bottom, v.Bounds.Left, v.Bounds.Right, v.BaseLayer, string(layers), v.ID, v.PadID,
	)
	if err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "update view", err)
	}
	return requireRow(res, syncerrors.CodeObjectNotFound, "view "+v.ID)
}

func (s *SQLiteStore) DeleteView(ctx context.Context, tx DBTX, padID, id string) error {
	res, err := tx.ExecContext(ctx, "DELETE FROM views WHERE id = ? AND pad_id = ?", id, padID)
	if err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "delete view", err)
	}
	return requireRow(res, syncerrors.CodeObjectNotFound, "view "+id)
}

func (s *SQLiteStore) GetView(ctx context.Context, padID, id string) (*types.View, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT id, pad_id, name, bounds_top, bounds_bottom, bounds_left, bounds_right, base_layer, layers
		 FROM views WHERE id = ? AND pad_id = ?`, id, padID)
	v, err := scanView(row.Scan)
	if err == sql.ErrNoRows {
		return nil, syncerrors.NewNotFoundError(syncerrors.CodeObjectNotFound, "view not found")
	}
	if err != nil {
		return nil, syncerrors.NewStorageError(syncerrors.CodeReadFailed, "scan view", err)
	}
	return v, nil
}

func (s *SQLiteStore) ViewsForPad(ctx context.Context, padID string) ([]*types.View, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT id, pad_id, name, bounds_top, bounds_bottom, bounds_left, bounds_right, base_layer, layers
		 FROM views WHERE pad_id = ?`, padID)
	if err != nil {
		return nil, syncerrors.NewStorageError(syncerrors.CodeReadFailed, "query views", err)
	}
	defer rows.Close()

	var views []*types.View
	for rows.Next() {
		v, err := scanView(rows.Scan)
		if err != nil {
			return nil, syncerrors.NewStorageError(syncerrors.CodeReadFailed, "scan view", err)
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

func scanView(scan func(dest ...any) error) (*types.View, error) {
	var v types.View
	var layers string
	err := scan(&v.ID, &v.PadID, &v.Name, &v.Bounds.Top, &v.Bounds.Bottom, &v.Bounds.Left, &v.Bounds.Right, &v.BaseLayer, &layers)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(layers), &v.Layers); err != nil {
		return nil, err
	}
	return &v, nil
}

// --- Types ---

func (s *SQLiteStore) CreateType(ctx context.Context, tx DBTX, t *types.Type) error {
	fields, err := json.Marshal(orEmptyFields(t.Fields))
	if err != nil {
		return syncerrors.NewInternalError("marshal type fields", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO object_types (id, pad_id, name, object_kind, fields) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.PadID, t.Name, string(t.ObjectKind), string(fields),
	)
	if err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "insert type", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateType(ctx context.Context, tx DBTX, t *types.Type) error {
	fields, err := json.Marshal(orEmptyFields(t.Fields))
	if err != nil {
		return syncerrors.NewInternalError("marshal type fields", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE object_types SET name = ?, object_kind = ?, fields = ? WHERE id = ? AND pad_id = ?`,
		t.Name, string(t.ObjectKind), string(fields), t.ID, t.PadID,
	)
	if err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "update type", err)
	}
	return requireRow(res, syncerrors.CodeObjectNotFound, "type "+t.ID)
}

func (s *SQLiteStore) DeleteType(ctx context.Context, tx DBTX, padID, id string) error {
	res, err := tx.ExecContext(ctx, "DELETE FROM object_types WHERE id = ? AND pad_id = ?", id, padID)
	if err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "delete type", err)
	}
	return requireRow(res, syncerrors.CodeObjectNotFound, "type "+id)
}

func (s *SQLiteStore) GetType(ctx context.Context, padID, id string) (*types.Type, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT id, pad_id, name, object_kind, fields FROM object_types WHERE id = ? AND pad_id = ?`, id, padID)
	t, err := scanType(row.Scan)
	if err == sql.ErrNoRows {
		return nil, syncerrors.NewNotFoundError(syncerrors.CodeObjectNotFound, "type not found")
	}
	if err != nil {
		return nil, syncerrors.NewStorageError(syncerrors.CodeReadFailed, "scan type", err)
	}
	return t, nil
}

func (s *SQLiteStore) TypesForPad(ctx context.Context, padID string) ([]*types.Type, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT id, pad_id, name, object_kind, fields FROM object_types WHERE pad_id = ?`, padID)
	if err != nil {
		return nil, syncerrors.NewStorageError(syncerrors.CodeReadFailed, "query types", err)
	}
	defer rows.Close()

	var list []*types.Type
	for rows.Next() {
		t, err := scanType(rows.Scan)
		if err != nil {
			return nil, syncerrors.NewStorageError(syncerrors.CodeReadFailed, "scan type", err)
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

func (s *SQLiteStore) TypeInUse(ctx context.Context, padID, typeID string) (bool, error) {
	var count int
	err := s.readDB.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM markers WHERE pad_id = ? AND type_id = ?)
		      + (SELECT COUNT(*) FROM lines WHERE pad_id = ? AND type_id = ?)`,
		padID, typeID, padID, typeID,
	).Scan(&count)
	if err != nil {
		return false, syncerrors.NewStorageError(syncerrors.CodeReadFailed, "count type usage", err)
	}
	return count > 0, nil
}

func scanType(scan func(dest ...any) error) (*types.Type, error) {
	var t types.Type
	var kind, fields string
	if err := scan(&t.ID, &t.PadID, &t.Name, &kind, &fields); err != nil {
		return nil, err
	}
	t.ObjectKind = types.ObjectKind(kind)
	if err := json.Unmarshal([]byte(fields), &t.Fields); err != nil {
		return nil, err
	}
	return &t, nil
}

// --- helpers ---

func requireRow(res sql.Result, code, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "rows affected", err)
	}
	if n == 0 {
		return syncerrors.NewNotFoundError(code, what+" not found")
	}
	return nil
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyFields(f []types.Field) []types.Field {
	if f == nil {
		return []types.Field{}
	}
	return f
}
