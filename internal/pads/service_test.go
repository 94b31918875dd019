package pads

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padsync/padsync/internal/broadcast"
	syncerrors "github.com/padsync/padsync/internal/errors"
	"github.com/padsync/padsync/internal/geometry"
	"github.com/padsync/padsync/internal/history"
	"github.com/padsync/padsync/internal/padstore"
	"github.com/padsync/padsync/internal/registry"
	"github.com/padsync/padsync/pkg/types"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()

	store, err := padstore.Open(filepath.Join(dir, "pads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	geom, err := geometry.Open(filepath.Join(dir, "geometry.db"), 100)
	require.NoError(t, err)
	t.Cleanup(func() { geom.Close() })

	hist := history.NewLog(store.ReadDB(), 100)
	bus := broadcast.NewBroadcaster(64)
	reg := registry.NewRegistry(0)

	return NewService(store, geom, hist, bus, reg, nil)
}

func createTestPad(t *testing.T, svc *Service) *types.Pad {
	t.Helper()
	pad, err := svc.CreatePad(context.Background(), &types.Pad{Name: "Trip planning"})
	require.NoError(t, err)
	return pad
}

// drain collects everything currently buffered on the subscriber.
func drain(sub *broadcast.Subscriber) []broadcast.Event {
	var events []broadcast.Event
	for {
		select {
		case ev := <-sub.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

func eventNames(events []broadcast.Event) []string {
	names := make([]string, len(events))
	for i, ev := range events {
		names[i] = ev.Name
	}
	return names
}

func testRoutePoints() []types.Point {
	return []types.Point{
		{Lat: 47.0, Lon: 8.0},
		{Lat: 47.1, Lon: 8.2},
	}
}

func TestAddMarkerBroadcasts(t *testing.T) {
	svc := newTestService(t)
	pad := createTestPad(t, svc)
	ctx := context.Background()

	sub := svc.Broadcaster().Subscribe(pad.ID)
	defer svc.Broadcaster().Unsubscribe(sub)

	m, err := svc.AddMarker(ctx, types.PermissionWrite, pad.ID, &types.Marker{
		Lat: 47, Lon: 8, Name: "Start", Colour: "ff0000",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, pad.ID, m.PadID)

	events := drain(sub)
	require.Equal(t, []string{types.EventMarker, types.EventHistory}, eventNames(events))

	stored, err := svc.GetMarker(ctx, pad.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Start", stored.Name)
}

func TestEditMarkerFansOutNewColour(t *testing.T) {
	svc := newTestService(t)
	pad := createTestPad(t, svc)
	ctx := context.Background()

	m, err := svc.AddMarker(ctx, types.PermissionWrite, pad.ID, &types.Marker{Lat: 47, Lon: 8, Colour: "ff0000"})
	require.NoError(t, err)

	sub := svc.Broadcaster().Subscribe(pad.ID)
	defer svc.Broadcaster().Unsubscribe(sub)

	m.Colour = "00ff00"
	_, err = svc.EditMarker(ctx, types.PermissionWrite, pad.ID, m)
	require.NoError(t, err)

	events := drain(sub)
	require.NotEmpty(t, events)
	assert.Equal(t, types.EventMarker, events[0].Name)
	pushed := events[0].Data.(*types.Marker)
	assert.Equal(t, "00ff00", pushed.Colour)
}

func TestMutationsRequireWriteAccess(t *testing.T) {
	svc := newTestService(t)
	pad := createTestPad(t, svc)
	ctx := context.Background()

	_, err := svc.AddMarker(ctx, types.PermissionRead, pad.ID, &types.Marker{Lat: 1, Lon: 1})
	require.Error(t, err)
	assert.Equal(t, syncerrors.CodeReadOnly, syncerrors.GetCode(err))

	err = svc.DeleteMarker(ctx, types.PermissionRead, pad.ID, "whatever")
	require.Error(t, err)
	assert.Equal(t, syncerrors.CodeReadOnly, syncerrors.GetCode(err))
}

func TestAdminOperationsRejectWriteLevel(t *testing.T) {
	svc := newTestService(t)
	pad := createTestPad(t, svc)
	ctx := context.Background()

	_, err := svc.AddView(ctx, types.PermissionWrite, pad.ID, &types.View{Name: "Overview", Bounds: types.Bbox{Top: 1, Bottom: 0, Left: 0, Right: 1}})
	require.Error(t, err)
	assert.Equal(t, syncerrors.CodeAdminRequired, syncerrors.GetCode(err))

	_, err = svc.AddType(ctx, types.PermissionWrite, pad.ID, &types.Type{Name: "POI", ObjectKind: types.KindMarker})
	require.Error(t, err)
	assert.Equal(t, syncerrors.CodeAdminRequired, syncerrors.GetCode(err))

	err = svc.DeletePad(ctx, types.PermissionWrite, pad.ID)
	require.Error(t, err)
	assert.Equal(t, syncerrors.CodeAdminRequired, syncerrors.GetCode(err))
}

func TestAddLineComputesGeometry(t *testing.T) {
	svc := newTestService(t)
	pad := createTestPad(t, svc)
	ctx := context.Background()

	sub := svc.Broadcaster().Subscribe(pad.ID)
	defer svc.Broadcaster().Unsubscribe(sub)

	line, err := svc.AddLine(ctx, types.PermissionWrite, pad.ID, &types.Line{
		Name:        "Hike",
		RoutePoints: testRoutePoints(),
		Colour:      "0000ff",
		Width:       4,
	})
	require.NoError(t, err)
	assert.Greater(t, line.Distance, 0.0)
	assert.Equal(t, 47.1, line.Bounds.Top)
	assert.Equal(t, 8.0, line.Bounds.Left)

	points, err := svc.Geometry().FullLinePoints(ctx, line.ID)
	require.NoError(t, err)
	require.NotEmpty(t, points)

	events := drain(sub)
	names := eventNames(events)
	assert.Contains(t, names, types.EventLine)
	assert.Contains(t, names, types.EventLinePoints)
	for _, ev := range events {
		if ev.Name == types.EventLinePoints {
			payload := ev.Data.(types.LinePointsPayload)
			assert.True(t, payload.Reset)
			assert.Equal(t, line.ID, payload.ID)
		}
	}
}

func TestEditLineKeepsGeometryWhenRouteUnchanged(t *testing.T) {
	svc := newTestService(t)
	pad := createTestPad(t, svc)
	ctx := context.Background()

	line, err := svc.AddLine(ctx, types.PermissionWrite, pad.ID, &types.Line{RoutePoints: testRoutePoints()})
	require.NoError(t, err)
	origDistance := line.Distance

	sub := svc.Broadcaster().Subscribe(pad.ID)
	defer svc.Broadcaster().Unsubscribe(sub)

	update := *line
	update.Colour = "ff8800"
	edited, err := svc.EditLine(ctx, types.PermissionWrite, pad.ID, &update)
	require.NoError(t, err)
	assert.Equal(t, origDistance, edited.Distance)

	// No recalculation means no linePoints push.
	assert.NotContains(t, eventNames(drain(sub)), types.EventLinePoints)
}

func TestEditLineRecalculatesOnRouteChange(t *testing.T) {
	svc := newTestService(t)
	pad := createTestPad(t, svc)
	ctx := context.Background()

	line, err := svc.AddLine(ctx, types.PermissionWrite, pad.ID, &types.Line{RoutePoints: testRoutePoints()})
	require.NoError(t, err)

	sub := svc.Broadcaster().Subscribe(pad.ID)
	defer svc.Broadcaster().Unsubscribe(sub)

	update := *line
	update.RoutePoints = []types.Point{
		{Lat: 47.0, Lon: 8.0},
		{Lat: 48.0, Lon: 9.0},
	}
	edited, err := svc.EditLine(ctx, types.PermissionWrite, pad.ID, &update)
	require.NoError(t, err)
	assert.Greater(t, edited.Distance, line.Distance)
	assert.Equal(t, 48.0, edited.Bounds.Top)

	assert.Contains(t, eventNames(drain(sub)), types.EventLinePoints)
}

func TestDeleteLineDropsGeometry(t *testing.T) {
	svc := newTestService(t)
	pad := createTestPad(t, svc)
	ctx := context.Background()

	line, err := svc.AddLine(ctx, types.PermissionWrite, pad.ID, &types.Line{RoutePoints: testRoutePoints()})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteLine(ctx, types.PermissionWrite, pad.ID, line.ID))

	_, err = svc.GetLine(ctx, pad.ID, line.ID)
	require.Error(t, err)

	points, err := svc.Geometry().FullLinePoints(ctx, line.ID)
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestRevertDeleteRecreatesMarker(t *testing.T) {
	svc := newTestService(t)
	pad := createTestPad(t, svc)
	ctx := context.Background()

	m, err := svc.AddMarker(ctx, types.PermissionWrite, pad.ID, &types.Marker{Lat: 47, Lon: 8, Name: "Summit"})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteMarker(ctx, types.PermissionWrite, pad.ID, m.ID))

	entries, err := svc.HistoryEntries(ctx, pad.ID)
	require.NoError(t, err)
	// Newest first: the delete entry leads.
	require.NotEmpty(t, entries)
	require.Equal(t, types.ActionDelete, entries[0].Action)

	require.NoError(t, svc.RevertHistoryEntry(ctx, types.PermissionWrite, pad.ID, entries[0].ID))

	restored, err := svc.GetMarker(ctx, pad.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Summit", restored.Name)

	// The revert itself is an ordinary mutation with its own entry.
	after, err := svc.HistoryEntries(ctx, pad.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ActionCreate, after[0].Action)
	assert.Equal(t, m.ID, after[0].ObjectID)
}

func TestRevertUpdateRestoresPreviousState(t *testing.T) {
	svc := newTestService(t)
	pad := createTestPad(t, svc)
	ctx := context.Background()

	m, err := svc.AddMarker(ctx, types.PermissionWrite, pad.ID, &types.Marker{Lat: 47, Lon: 8, Name: "before"})
	require.NoError(t, err)

	update := *m
	update.Name = "after"
	_, err = svc.EditMarker(ctx, types.PermissionWrite, pad.ID, &update)
	require.NoError(t, err)

	entries, err := svc.HistoryEntries(ctx, pad.ID)
	require.NoError(t, err)
	require.Equal(t, types.ActionUpdate, entries[0].Action)

	require.NoError(t, svc.RevertHistoryEntry(ctx, types.PermissionWrite, pad.ID, entries[0].ID))

	restored, err := svc.GetMarker(ctx, pad.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "before", restored.Name)
}

func TestRevertCreateDeletesObject(t *testing.T) {
	svc := newTestService(t)
	pad := createTestPad(t, svc)
	ctx := context.Background()

	m, err := svc.AddMarker(ctx, types.PermissionWrite, pad.ID, &types.Marker{Lat: 47, Lon: 8})
	require.NoError(t, err)

	entries, err := svc.HistoryEntries(ctx, pad.ID)
	require.NoError(t, err)
	require.Equal(t, types.ActionCreate, entries[0].Action)

	require.NoError(t, svc.RevertHistoryEntry(ctx, types.PermissionWrite, pad.ID, entries[0].ID))

	_, err = svc.GetMarker(ctx, pad.ID, m.ID)
	require.Error(t, err)
	assert.Equal(t, syncerrors.ErrCategoryNotFound, syncerrors.GetCategory(err))
}

func TestDeleteTypeBlockedWhileReferenced(t *testing.T) {
	svc := newTestService(t)
	pad := createTestPad(t, svc)
	ctx := context.Background()

	typ, err := svc.AddType(ctx, types.PermissionAdmin, pad.ID, &types.Type{Name: "POI", ObjectKind: types.KindMarker})
	require.NoError(t, err)

	m, err := svc.AddMarker(ctx, types.PermissionWrite, pad.ID, &types.Marker{Lat: 1, Lon: 1, TypeID: typ.ID})
	require.NoError(t, err)

	err = svc.DeleteType(ctx, types.PermissionAdmin, pad.ID, typ.ID)
	require.Error(t, err)
	assert.Equal(t, syncerrors.CodeTypeInUse, syncerrors.GetCode(err))

	require.NoError(t, svc.DeleteMarker(ctx, types.PermissionWrite, pad.ID, m.ID))
	require.NoError(t, svc.DeleteType(ctx, types.PermissionAdmin, pad.ID, typ.ID))
}

func TestDeleteViewClearsDefault(t *testing.T) {
	svc := newTestService(t)
	pad := createTestPad(t, svc)
	ctx := context.Background()

	view, err := svc.AddView(ctx, types.PermissionAdmin, pad.ID, &types.View{
		Name:   "Overview",
		Bounds: types.Bbox{Top: 1, Bottom: 0, Left: 0, Right: 1},
	})
	require.NoError(t, err)

	update := *pad
	update.DefaultViewID = view.ID
	_, err = svc.EditPad(ctx, types.PermissionAdmin, pad.ID, &update)
	require.NoError(t, err)

	sub := svc.Broadcaster().Subscribe(pad.ID)
	defer svc.Broadcaster().Unsubscribe(sub)

	require.NoError(t, svc.DeleteView(ctx, types.PermissionAdmin, pad.ID, view.ID))

	stored, err := svc.Store().GetPad(ctx, pad.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.DefaultViewID)

	assert.Contains(t, eventNames(drain(sub)), types.EventPadData)
}

func TestDeletePadRemovesEverything(t *testing.T) {
	svc := newTestService(t)
	pad := createTestPad(t, svc)
	ctx := context.Background()

	_, err := svc.AddMarker(ctx, types.PermissionWrite, pad.ID, &types.Marker{Lat: 1, Lon: 1})
	require.NoError(t, err)
	line, err := svc.AddLine(ctx, types.PermissionWrite, pad.ID, &types.Line{RoutePoints: testRoutePoints()})
	require.NoError(t, err)

	sub := svc.Broadcaster().Subscribe(pad.ID)
	defer svc.Broadcaster().Unsubscribe(sub)

	require.NoError(t, svc.DeletePad(ctx, types.PermissionAdmin, pad.ID))

	_, _, err = svc.PadByToken(ctx, pad.ReadID)
	require.Error(t, err)

	points, err := svc.Geometry().FullLinePoints(ctx, line.ID)
	require.NoError(t, err)
	assert.Empty(t, points)

	assert.Contains(t, eventNames(drain(sub)), types.EventDeletePad)
}

func TestAddLineGeometryFailureLeavesNoTrace(t *testing.T) {
	svc := newTestService(t)
	pad := createTestPad(t, svc)
	ctx := context.Background()

	sub := svc.Broadcaster().Subscribe(pad.ID)
	defer svc.Broadcaster().Unsubscribe(sub)

	before, err := svc.HistoryEntries(ctx, pad.ID)
	require.NoError(t, err)

	// A dead geometry store fails the point write mid-mutation.
	require.NoError(t, svc.Geometry().Close())

	_, err = svc.AddLine(ctx, types.PermissionWrite, pad.ID, &types.Line{
		ID:          "l-fail",
		RoutePoints: testRoutePoints(),
	})
	require.Error(t, err)

	// The line row and its history entry rolled back with it, and nothing
	// was broadcast.
	_, err = svc.GetLine(ctx, pad.ID, "l-fail")
	require.Error(t, err)
	after, err := svc.HistoryEntries(ctx, pad.ID)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
	assert.Empty(t, drain(sub))
}

func TestEditLineGeometryFailureLeavesLineUnchanged(t *testing.T) {
	svc := newTestService(t)
	pad := createTestPad(t, svc)
	ctx := context.Background()

	line, err := svc.AddLine(ctx, types.PermissionWrite, pad.ID, &types.Line{RoutePoints: testRoutePoints()})
	require.NoError(t, err)

	before, err := svc.HistoryEntries(ctx, pad.ID)
	require.NoError(t, err)

	sub := svc.Broadcaster().Subscribe(pad.ID)
	defer svc.Broadcaster().Unsubscribe(sub)

	require.NoError(t, svc.Geometry().Close())

	update := *line
	update.RoutePoints = []types.Point{
		{Lat: 10, Lon: 10},
		{Lat: 11, Lon: 11},
	}
	_, err = svc.EditLine(ctx, types.PermissionWrite, pad.ID, &update)
	require.Error(t, err)

	stored, err := svc.GetLine(ctx, pad.ID, line.ID)
	require.NoError(t, err)
	assert.Equal(t, testRoutePoints(), stored.RoutePoints)
	after, err := svc.HistoryEntries(ctx, pad.ID)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
	assert.Empty(t, drain(sub))
}

func TestDeleteLineBroadcastsDespiteGeometryCleanupFailure(t *testing.T) {
	svc := newTestService(t)
	pad := createTestPad(t, svc)
	ctx := context.Background()

	line, err := svc.AddLine(ctx, types.PermissionWrite, pad.ID, &types.Line{RoutePoints: testRoutePoints()})
	require.NoError(t, err)

	sub := svc.Broadcaster().Subscribe(pad.ID)
	defer svc.Broadcaster().Unsubscribe(sub)

	require.NoError(t, svc.Geometry().Close())

	// The committed delete reaches subscribers even though the orphaned
	// geometry could not be cleaned up.
	require.NoError(t, svc.DeleteLine(ctx, types.PermissionWrite, pad.ID, line.ID))

	_, err = svc.GetLine(ctx, pad.ID, line.ID)
	require.Error(t, err)
	names := eventNames(drain(sub))
	assert.Contains(t, names, types.EventDeleteLine)
	assert.Contains(t, names, types.EventHistory)
}

func TestDeletePadBroadcastsDespiteGeometryCleanupFailure(t *testing.T) {
	svc := newTestService(t)
	pad := createTestPad(t, svc)
	ctx := context.Background()

	sub := svc.Broadcaster().Subscribe(pad.ID)
	defer svc.Broadcaster().Unsubscribe(sub)

	require.NoError(t, svc.Geometry().Close())

	require.NoError(t, svc.DeletePad(ctx, types.PermissionAdmin, pad.ID))

	_, _, err := svc.PadByToken(ctx, pad.ReadID)
	require.Error(t, err)
	assert.Contains(t, eventNames(drain(sub)), types.EventDeletePad)
}

func TestDirtyHookFiresOnMutations(t *testing.T) {
	svc := newTestService(t)
	pad := createTestPad(t, svc)
	ctx := context.Background()

	var dirty []string
	svc.SetDirtyHook(func(padID string) { dirty = append(dirty, padID) })

	_, err := svc.AddMarker(ctx, types.PermissionWrite, pad.ID, &types.Marker{Lat: 1, Lon: 1})
	require.NoError(t, err)
	require.NoError(t, svc.DeletePad(ctx, types.PermissionAdmin, pad.ID))

	assert.Equal(t, []string{pad.ID, pad.ID}, dirty)
}
