// Package history provides the append-only per-pad mutation journal.
//
// The journal shares the pad database so an object write and its history
// entry commit in one transaction: no mutation is recorded without an entry
// and no entry exists for a rolled-back mutation. Reverting an entry is a
// new mutation (performed by the pad service), never a rewrite of the
// journal.
package history

import (
	"context"
	"crypto/rand"
	"database/sql"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	syncerrors "github.com/padsync/padsync/internal/errors"
	"github.com/padsync/padsync/internal/padstore"
	"github.com/padsync/padsync/pkg/types"
)

// DefaultRetain is the default number of entries kept per pad.
const DefaultRetain = 100

// Entry ids must stay ordered even within one millisecond, since pruning
// and listing order by id. The monotonic reader is not concurrency-safe,
// so it sits behind a mutex.
var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newEntryID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Log is the history journal over the shared pad database.
type Log struct {
	readDB *sql.DB
	retain int
}

// NewLog creates a history log reading from the given pad database read
// pool. Writes always go through the caller's transaction. retain <= 0
// selects DefaultRetain.
func NewLog(readDB *sql.DB, retain int) *Log {
	if retain <= 0 {
		retain = DefaultRetain
	}
	return &Log{
		readDB: readDB,
		retain: retain,
	}
}

// Append writes an entry within the caller's transaction, assigning a
// time-ordered id and timestamp if unset, and prunes entries beyond the
// retention bound for the pad.
func (l *Log) Append(ctx context.Context, tx padstore.DBTX, e *types.HistoryEntry) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if e.ID == "" {
		e.ID = newEntryID(e.Time)
	}

	var snapshot any
	if e.Snapshot != nil {
		snapshot = string(e.Snapshot)
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO history (id, pad_id, object_kind, object_id, action, snapshot, time)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PadID, string(e.ObjectKind), e.ObjectID, string(e.Action), snapshot, e.Time.UnixMilli(),
	)
	if err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "append history entry", err)
	}

	// Prune oldest entries beyond the retention bound. ULID ids sort
	// chronologically, so ordering by id is ordering by time.
	_, err = tx.ExecContext(ctx,
		`DELETE FROM history WHERE pad_id = ? AND id NOT IN (
			SELECT id FROM history WHERE pad_id = ? ORDER BY id DESC LIMIT ?
		)`,
		e.PadID, e.PadID, l.retain,
	)
	if err != nil {
		return syncerrors.NewStorageError(syncerrors.CodeWriteFailed, "prune history", err)
	}
	return nil
}

// Entries returns the pad's history, newest first, up to the retention bound.
func (l *Log) Entries(ctx context.Context, padID string) ([]*types.HistoryEntry, error) {
	rows, err := l.readDB.QueryContext(ctx,
		`SELECT id, pad_id, object_kind, object_id, action, snapshot, time
		 FROM history WHERE pad_id = ? ORDER BY id DESC LIMIT ?`,
		padID, l.retain)
	if err != nil {
		return nil, syncerrors.NewStorageError(syncerrors.CodeReadFailed, "query history", err)
	}
	defer rows.Close()

	var entries []*types.HistoryEntry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, syncerrors.NewStorageError(syncerrors.CodeReadFailed, "scan history entry", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Entry returns a single history entry of a pad by id.
func (l *Log) Entry(ctx context.Context, padID, id string) (*types.HistoryEntry, error) {
	row := l.readDB.QueryRowContext(ctx,
		`SELECT id, pad_id, object_kind, object_id, action, snapshot, time
		 FROM history WHERE pad_id = ? AND id = ?`, padID, id)
	e, err := scanEntry(row.Scan)
	if err == sql.ErrNoRows {
		return nil, syncerrors.NewNotFoundError(syncerrors.CodeEntryNotFound, "history entry not found")
	}
	if err != nil {
		return nil, syncerrors.NewStorageError(syncerrors.CodeReadFailed, "scan history entry", err)
	}
	return e, nil
}

func scanEntry(scan func(dest ...any) error) (*types.HistoryEntry, error) {
	var e types.HistoryEntry
	var kind, action string
	var snapshot sql.NullString
	var timeMilli int64
	if err := scan(&e.ID, &e.PadID, &kind, &e.ObjectID, &action, &snapshot, &timeMilli); err != nil {
		return nil, err
	}
	e.ObjectKind = types.ObjectKind(kind)
	e.Action = types.HistoryAction(action)
	if snapshot.Valid {
		e.Snapshot = []byte(snapshot.String)
	}
	e.Time = time.UnixMilli(timeMilli)
	return &e, nil
}
