package history

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncerrors "github.com/padsync/padsync/internal/errors"
	"github.com/padsync/padsync/internal/padstore"
	"github.com/padsync/padsync/pkg/types"
)

func openTestLog(t *testing.T, retain int) (*padstore.SQLiteStore, *Log) {
	t.Helper()
	store, err := padstore.Open(filepath.Join(t.TempDir(), "pads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, NewLog(store.ReadDB(), retain)
}

func appendEntry(t *testing.T, store *padstore.SQLiteStore, log *Log, e *types.HistoryEntry) {
	t.Helper()
	require.NoError(t, store.InTx(context.Background(), func(tx padstore.DBTX) error {
		return log.Append(context.Background(), tx, e)
	}))
}

func TestAppendAssignsOrderedIDs(t *testing.T) {
	store, log := openTestLog(t, 10)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		e := &types.HistoryEntry{
			PadID:      "pad1",
			ObjectKind: types.KindMarker,
			ObjectID:   fmt.Sprintf("m%d", i),
			Action:     types.ActionCreate,
		}
		appendEntry(t, store, log, e)
		require.NotEmpty(t, e.ID)
		ids = append(ids, e.ID)
	}

	// ULIDs assigned later sort later.
	for i := 1; i < len(ids); i++ {
		assert.Less(t, ids[i-1], ids[i])
	}

	entries, err := log.Entries(ctx, "pad1")
	require.NoError(t, err)
	require.Len(t, entries, 5)

	// Newest first.
	assert.Equal(t, "m4", entries[0].ObjectID)
	assert.Equal(t, "m0", entries[4].ObjectID)
}

func TestRetentionPrunesOldest(t *testing.T) {
	store, log := openTestLog(t, 3)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		appendEntry(t, store, log, &types.HistoryEntry{
			PadID:      "pad1",
			ObjectKind: types.KindMarker,
			ObjectID:   fmt.Sprintf("m%d", i),
			Action:     types.ActionCreate,
		})
	}

	entries, err := log.Entries(ctx, "pad1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "m5", entries[0].ObjectID)
	assert.Equal(t, "m3", entries[2].ObjectID)
}

func TestRetentionIsPerPad(t *testing.T) {
	store, log := openTestLog(t, 3)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		appendEntry(t, store, log, &types.HistoryEntry{
			PadID: "pad1", ObjectKind: types.KindMarker, ObjectID: "a", Action: types.ActionCreate,
		})
		appendEntry(t, store, log, &types.HistoryEntry{
			PadID: "pad2", ObjectKind: types.KindMarker, ObjectID: "b", Action: types.ActionCreate,
		})
	}

	for _, padID := range []string{"pad1", "pad2"} {
		entries, err := log.Entries(ctx, padID)
		require.NoError(t, err)
		assert.Len(t, entries, 3)
	}
}

func TestEntrySnapshotRoundTrip(t *testing.T) {
	store, log := openTestLog(t, 10)
	ctx := context.Background()

	snapshot, err := json.Marshal(&types.Marker{ID: "m1", Lat: 52.5, Lon: 13.4, Colour: "ff0000"})
	require.NoError(t, err)

	e := &types.HistoryEntry{
		PadID:      "pad1",
		ObjectKind: types.KindMarker,
		ObjectID:   "m1",
		Action:     types.ActionUpdate,
		Snapshot:   snapshot,
	}
	appendEntry(t, store, log, e)

	got, err := log.Entry(ctx, "pad1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ActionUpdate, got.Action)

	var m types.Marker
	require.NoError(t, json.Unmarshal(got.Snapshot, &m))
	assert.Equal(t, "ff0000", m.Colour)
}

func TestEntryNotFound(t *testing.T) {
	_, log := openTestLog(t, 10)

	_, err := log.Entry(context.Background(), "pad1", "nope")
	assert.Equal(t, syncerrors.ErrCategoryNotFound, syncerrors.GetCategory(err))
}
