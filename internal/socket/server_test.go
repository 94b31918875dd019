package socket

import (
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padsync/padsync/internal/broadcast"
	"github.com/padsync/padsync/internal/config"
	"github.com/padsync/padsync/internal/geometry"
	"github.com/padsync/padsync/internal/history"
	"github.com/padsync/padsync/internal/pads"
	"github.com/padsync/padsync/internal/padstore"
	"github.com/padsync/padsync/internal/registry"
	"github.com/padsync/padsync/pkg/types"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()

	store, err := padstore.Open(filepath.Join(dir, "pads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	geom, err := geometry.Open(filepath.Join(dir, "geometry.db"), 100)
	require.NoError(t, err)
	t.Cleanup(func() { geom.Close() })

	svc := pads.NewService(store, geom,
		history.NewLog(store.ReadDB(), 100),
		broadcast.NewBroadcaster(64),
		registry.NewRegistry(0), nil)

	cfg := config.ServerConfig{
		ReadTimeout:  time.Minute,
		WriteTimeout: 10 * time.Second,
		PingInterval: 25 * time.Second,
		EventBuffer:  64,
	}

	srv := httptest.NewServer(NewServer(svc, cfg))
	t.Cleanup(srv.Close)
	return srv
}

type testClient struct {
	t      *testing.T
	conn   *websocket.Conn
	nextID int64
}

func dialTestServer(t *testing.T, srv *httptest.Server) *testClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn}
}

func (c *testClient) read() Message {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(c.t, c.conn.ReadJSON(&msg))
	return msg
}

// request sends a request frame and reads until its response arrives,
// collecting push events seen on the way.
func (c *testClient) request(name string, payload any) (Message, []Message) {
	c.t.Helper()
	c.nextID++
	id := c.nextID

	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(c.t, err)
		data = raw
	}
	require.NoError(c.t, c.conn.WriteJSON(Message{ID: &id, Name: name, Data: data}))

	var pushes []Message
	for {
		msg := c.read()
		if msg.ID != nil && *msg.ID == id {
			return msg, pushes
		}
		pushes = append(pushes, msg)
	}
}

// waitForPush reads frames until a push with the given name arrives.
func (c *testClient) waitForPush(name string) Message {
	c.t.Helper()
	for {
		msg := c.read()
		if msg.ID == nil && msg.Name == name {
			return msg
		}
	}
}

func worldViewport() types.BboxWithZoom {
	return types.BboxWithZoom{
		Bbox: types.Bbox{Top: 85, Bottom: -85, Left: -180, Right: 180},
		Zoom: 10,
	}
}

func TestCreatePadAttachesAsAdmin(t *testing.T) {
	srv := newTestServer(t)
	client := dialTestServer(t, srv)

	resp, pushes := client.request(reqCreatePad, types.Pad{Name: "Trip"})
	require.Nil(t, resp.Error)

	var pad types.Pad
	require.NoError(t, json.Unmarshal(resp.Data, &pad))
	assert.Equal(t, "Trip", pad.Name)
	assert.NotEmpty(t, pad.AdminID)
	assert.NotEmpty(t, pad.WriteID)
	assert.NotEmpty(t, pad.ReadID)

	// The initial state push precedes the response.
	var sawPadData bool
	for _, p := range pushes {
		if p.Name == types.EventPadData {
			sawPadData = true
		}
	}
	assert.True(t, sawPadData)
}

func TestRequestsWithoutAttachmentFail(t *testing.T) {
	srv := newTestServer(t)
	client := dialTestServer(t, srv)

	resp, _ := client.request(reqAddMarker, types.Marker{Lat: 1, Lon: 1})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "PAD_NOT_FOUND", resp.Error.Code)
}

func TestSetPadIDStripsTokensByPermission(t *testing.T) {
	srv := newTestServer(t)
	admin := dialTestServer(t, srv)

	resp, _ := admin.request(reqCreatePad, nil)
	require.Nil(t, resp.Error)
	var created types.Pad
	require.NoError(t, json.Unmarshal(resp.Data, &created))

	writer := dialTestServer(t, srv)
	resp, _ = writer.request(reqSetPadID, setPadIDRequest{PadID: created.WriteID})
	require.Nil(t, resp.Error)

	var pad types.Pad
	require.NoError(t, json.Unmarshal(resp.Data, &pad))
	assert.NotEmpty(t, pad.WriteID)
	assert.Empty(t, pad.AdminID)

	reader := dialTestServer(t, srv)
	resp, _ = reader.request(reqSetPadID, setPadIDRequest{PadID: created.ReadID})
	require.Nil(t, resp.Error)
	require.NoError(t, json.Unmarshal(resp.Data, &pad))
	assert.Empty(t, pad.WriteID)
	assert.Empty(t, pad.AdminID)

	// getPad strips the same way.
	resp, _ = reader.request(reqGetPad, nil)
	require.Nil(t, resp.Error)
	require.NoError(t, json.Unmarshal(resp.Data, &pad))
	assert.NotEmpty(t, pad.ReadID)
	assert.Empty(t, pad.WriteID)
}

func TestBogusTokenRejected(t *testing.T) {
	srv := newTestServer(t)
	client := dialTestServer(t, srv)

	resp, _ := client.request(reqSetPadID, setPadIDRequest{PadID: "not-a-token"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Category)
}

func TestMarkerMutationReachesOtherSubscriber(t *testing.T) {
	srv := newTestServer(t)

	admin := dialTestServer(t, srv)
	resp, _ := admin.request(reqCreatePad, nil)
	require.Nil(t, resp.Error)
	var pad types.Pad
	require.NoError(t, json.Unmarshal(resp.Data, &pad))

	watcher := dialTestServer(t, srv)
	resp, _ = watcher.request(reqSetPadID, setPadIDRequest{PadID: pad.ReadID})
	require.Nil(t, resp.Error)

	resp, _ = admin.request(reqAddMarker, types.Marker{Lat: 47, Lon: 8, Name: "Start"})
	require.Nil(t, resp.Error)

	pushMsg := watcher.waitForPush(types.EventMarker)
	var m types.Marker
	require.NoError(t, json.Unmarshal(pushMsg.Data, &m))
	assert.Equal(t, "Start", m.Name)
	assert.Equal(t, 47.0, m.Lat)
}

func TestReadOnlyConnectionCannotWrite(t *testing.T) {
	srv := newTestServer(t)

	admin := dialTestServer(t, srv)
	resp, _ := admin.request(reqCreatePad, nil)
	require.Nil(t, resp.Error)
	var pad types.Pad
	require.NoError(t, json.Unmarshal(resp.Data, &pad))

	reader := dialTestServer(t, srv)
	resp, _ = reader.request(reqSetPadID, setPadIDRequest{PadID: pad.ReadID})
	require.Nil(t, resp.Error)

	resp, _ = reader.request(reqAddMarker, types.Marker{Lat: 1, Lon: 1})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "READ_ONLY", resp.Error.Code)
}

func TestViewportFillDeliversLinePoints(t *testing.T) {
	srv := newTestServer(t)

	admin := dialTestServer(t, srv)
	resp, _ := admin.request(reqCreatePad, nil)
	require.Nil(t, resp.Error)

	resp, _ = admin.request(reqAddLine, types.Line{
		RoutePoints: []types.Point{
			{Lat: 47.0, Lon: 8.0},
			{Lat: 47.1, Lon: 8.2},
		},
	})
	require.Nil(t, resp.Error)
	var line types.Line
	require.NoError(t, json.Unmarshal(resp.Data, &line))

	resp, pushes := admin.request(reqUpdateBbox, worldViewport())
	require.Nil(t, resp.Error)

	// The fill arrives as pushes before the updateBbox response.
	var gotLine, gotPoints bool
	for _, p := range pushes {
		switch p.Name {
		case types.EventLine:
			gotLine = true
		case types.EventLinePoints:
			gotPoints = true
			var payload types.LinePointsPayload
			require.NoError(t, json.Unmarshal(p.Data, &payload))
			assert.Equal(t, line.ID, payload.ID)
			assert.NotEmpty(t, payload.TrackPoints)
		}
	}
	assert.True(t, gotLine)
	assert.True(t, gotPoints)
}

func TestInvalidBboxKeepsSessionUsable(t *testing.T) {
	srv := newTestServer(t)

	client := dialTestServer(t, srv)
	resp, _ := client.request(reqCreatePad, nil)
	require.Nil(t, resp.Error)

	bad := types.BboxWithZoom{
		Bbox: types.Bbox{Top: -10, Bottom: 10, Left: 0, Right: 1},
		Zoom: 10,
	}
	resp, _ = client.request(reqUpdateBbox, bad)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_BBOX", resp.Error.Code)

	// The session keeps serving requests afterwards.
	resp, _ = client.request(reqAddMarker, types.Marker{Lat: 1, Lon: 1})
	require.Nil(t, resp.Error)
}

func TestHistoryListenToggle(t *testing.T) {
	srv := newTestServer(t)

	client := dialTestServer(t, srv)
	resp, _ := client.request(reqCreatePad, nil)
	require.Nil(t, resp.Error)

	resp, _ = client.request(reqAddMarker, types.Marker{Lat: 1, Lon: 1, Name: "first"})
	require.Nil(t, resp.Error)

	resp, _ = client.request(reqListenToHistory, nil)
	require.Nil(t, resp.Error)
	var entries []types.HistoryEntry
	require.NoError(t, json.Unmarshal(resp.Data, &entries))
	// Pad creation plus the marker.
	require.Len(t, entries, 2)
	assert.Equal(t, types.KindMarker, entries[0].ObjectKind)

	// While listening, further mutations push history entries. The push may
	// land before or after the mutation's own response.
	resp, pushes := client.request(reqAddMarker, types.Marker{Lat: 2, Lon: 2, Name: "second"})
	require.Nil(t, resp.Error)
	pushMsg := Message{}
	found := false
	for _, p := range pushes {
		if p.Name == types.EventHistory {
			pushMsg, found = p, true
		}
	}
	if !found {
		pushMsg = client.waitForPush(types.EventHistory)
	}
	var entry types.HistoryEntry
	require.NoError(t, json.Unmarshal(pushMsg.Data, &entry))
	assert.Equal(t, types.ActionCreate, entry.Action)
}
