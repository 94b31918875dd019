// Package geometry stores each line's rendered track points at multiple
// levels of simplification and answers "points visible in bbox B at zoom Z"
// queries. Points are zoom-tagged: a point with zoom z is part of the
// rendered geometry at every zoom >= z, so the visible set at a coarse zoom
// is a strict subset of the set at a finer zoom.
package geometry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang/snappy"
	_ "github.com/mattn/go-sqlite3"

	syncerrors "github.com/padsync/padsync/internal/errors"
	"github.com/padsync/padsync/pkg/types"
)

// DefaultBatchSize bounds the number of points delivered per callback so an
// enormous line cannot monopolize the delivery path.
const DefaultBatchSize = 1000

// Store is the SQLite-backed geometry store.
type Store struct {
	db        *sql.DB // Write connection (single writer)
	readDB    *sql.DB // Read connection pool (concurrent readers)
	batchSize int
	mu        sync.Mutex // Write-only lock
}

// Open creates a geometry store at the given database path. batchSize <= 0
// selects DefaultBatchSize.
func Open(dbPath string, batchSize int) (*Store, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("geometry: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("geometry: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		db:        db,
		readDB:    readDB,
		batchSize: batchSize,
	}

	if err := s.initSchema(); err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("geometry: failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *Store) initSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS line_points (
			line_id TEXT NOT NULL,
			pad_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			zoom INTEGER NOT NULL,
			PRIMARY KEY (line_id, idx)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_line_points_pad ON line_points(pad_id, zoom, lat)`,
		`CREATE TABLE IF NOT EXISTS line_blobs (
			line_id TEXT PRIMARY KEY,
			pad_id TEXT NOT NULL,
			points BLOB NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Close closes the database connections.
func (s *Store) Close() error {
	if err := s.readDB.Close(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}

// SetLinePoints replaces the stored point sequence for a line in one
// transaction; readers never observe a mix of old and new points. The
// points' zoom tags are taken as given — they are assigned by the
// simplification step or by an external router and never recomputed here.
// The full-resolution sequence is additionally packed into a
// snappy-compressed blob for whole-line reads.
func (s *Store) SetLinePoints(ctx context.Context, padID, lineID string, points []types.TrackPoint) error {
	blob, err := packPoints(points)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "begin geometry transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM line_points WHERE line_id = ?", lineID); err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "clear line points", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO line_points (line_id, pad_id, idx, lat, lon, zoom) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "prepare point insert", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, lineID, padID, p.Idx, p.Lat, p.Lon, p.Zoom); err != nil {
			return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "insert point", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO line_blobs (line_id, pad_id, points) VALUES (?, ?, ?)
		 ON CONFLICT(line_id) DO UPDATE SET points = excluded.points, pad_id = excluded.pad_id`,
		lineID, padID, blob); err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "store line blob", err)
	}

	if err := tx.Commit(); err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "commit geometry transaction", err)
	}
	return nil
}

// QueryLinePoints streams one line's points visible in the viewport,
// idx-ordered, in batches of at most the configured batch size.
func (s *Store) QueryLinePoints(ctx context.Context, lineID string, bbox types.BboxWithZoom, fn func(points []types.TrackPoint) error) error {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT idx, lat, lon, zoom FROM line_points
		 WHERE line_id = ? AND zoom <= ? AND lat <= ? AND lat >= ?
		 ORDER BY idx`,
		lineID, bbox.Zoom, bbox.Top, bbox.Bottom)
	if err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeReadFailed, "query line points", err)
	}
	defer rows.Close()

	batch := make([]types.TrackPoint, 0, s.batchSize)
	for rows.Next() {
		var p types.TrackPoint
		if err := rows.Scan(&p.Idx, &p.Lat, &p.Lon, &p.Zoom); err != nil {
			return syncerrors.NewStorageError(syncerrors.CodeReadFailed, "scan point", err)
		}
		if !bbox.ContainsTrackPoint(p) {
			continue
		}
		batch = append(batch, p)
		if len(batch) == s.batchSize {
			if err := fn(batch); err != nil {
				return err
			}
			batch = make([]types.TrackPoint, 0, s.batchSize)
		}
	}
	if err := rows.Err(); err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeReadFailed, "iterate points", err)
	}
	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}

// QueryPadPoints streams visible points for the given candidate lines of a
// pad, grouped by line id. lineIDs is the output of the line-bbox pre-filter;
// an empty slice means no candidates and produces no calls.
func (s *Store) QueryPadPoints(ctx context.Context, padID string, bbox types.BboxWithZoom, lineIDs []string, fn func(lineID string, points []types.TrackPoint) error) error {
	for _, lineID := range lineIDs {
		err := s.QueryLinePoints(ctx, lineID, bbox, func(points []types.TrackPoint) error {
			return fn(lineID, points)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// FullLinePoints returns the line's complete full-resolution point sequence
// from the compressed blob. Returns an empty slice for an unknown line.
func (s *Store) FullLinePoints(ctx context.Context, lineID string) ([]types.TrackPoint, error) {
	var blob []byte
	err := s.readDB.QueryRowContext(ctx,
		"SELECT points FROM line_blobs WHERE line_id = ?", lineID).Scan(&blob)
	if err == sql.ErrNoRows {
		return []types.TrackPoint{}, nil
	}
	if err != nil {
		return nil, syncerrors.NewStorageError(syncerrors.CodeReadFailed, "read line blob", err)
	}
	return unpackPoints(blob)
}

// DeleteLine removes all stored geometry for a line.
func (s *Store) DeleteLine(ctx context.Context, lineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM line_points WHERE line_id = ?", lineID); err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "delete line points", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM line_blobs WHERE line_id = ?", lineID); err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "delete line blob", err)
	}
	return nil
}

// DeletePad removes all stored geometry for a pad.
func (s *Store) DeletePad(ctx context.Context, padID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM line_points WHERE pad_id = ?", padID); err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "delete pad points", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM line_blobs WHERE pad_id = ?", padID); err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "delete pad blobs", err)
	}
	return nil
}

// Bounds computes the bounding box of a point sequence. The zero Bbox is
// returned for an empty sequence.
func Bounds(points []types.TrackPoint) types.Bbox {
	if len(points) == 0 {
		return types.Bbox{}
	}
	b := types.Bbox{
		Top:    points[0].Lat,
		Bottom: points[0].Lat,
		Left:   points[0].Lon,
		Right:  points[0].Lon,
	}
	for _, p := range points[1:] {
		if p.Lat > b.Top {
			b.Top = p.Lat
		}
		if p.Lat < b.Bottom {
			b.Bottom = p.Lat
		}
		if p.Lon < b.Left {
			b.Left = p.Lon
		}
		if p.Lon > b.Right {
			b.Right = p.Lon
		}
	}
	return b
}

// packPoints encodes a point sequence as snappy-compressed JSON.
func packPoints(points []types.TrackPoint) ([]byte, error) {
	if points == nil {
		points = []types.TrackPoint{}
	}
	raw, err := json.Marshal(points)
	if err != nil {
		return nil, syncerrors.NewInternalError("marshal points", err)
	}
	return snappy.Encode(nil, raw), nil
}

func unpackPoints(blob []byte) ([]types.TrackPoint, error) {
	raw, err := snappy.Decode(nil, blob)
	if err != nil {
		return nil, syncerrors.NewStorageError(syncerrors.CodeReadFailed, "decompress line blob", err)
	}
	var points []types.TrackPoint
	if err := json.Unmarshal(raw, &points); err != nil {
		return nil, syncerrors.NewStorageError(syncerrors.CodeReadFailed, "decode line blob", err)
	}
	return points, nil
}
