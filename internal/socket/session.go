package socket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/padsync/padsync/internal/broadcast"
	"github.com/padsync/padsync/internal/pads"
	"github.com/padsync/padsync/internal/viewport"
	"github.com/padsync/padsync/pkg/types"
)

// session is one websocket connection's state: the attached pad and
// permission, the viewport manager driving differential fills, and the
// broadcast subscription feeding pushed events.
type session struct {
	conn *websocket.Conn
	svc  *pads.Service

	readTimeout  time.Duration
	writeTimeout time.Duration
	pingInterval time.Duration

	// out is drained by the write pump, the only goroutine writing to the
	// connection.
	out  chan Message
	done chan struct{}

	// mu guards the attachment state shared between the request loop and
	// the event loop.
	mu        sync.Mutex
	pad       *types.Pad
	perm      types.Permission
	view      *types.BboxWithZoom
	listening bool

	vp  *viewport.Manager
	sub *broadcast.Subscriber
}

func newSession(conn *websocket.Conn, svc *pads.Service, readTimeout, writeTimeout, pingInterval time.Duration, outBuffer int) *session {
	return &session{
		conn:         conn,
		svc:          svc,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		out:          make(chan Message, outBuffer),
		done:         make(chan struct{}),
		vp:           viewport.NewManager(svc.Store(), svc.Geometry()),
	}
}

// run drives the session until the connection drops. The read loop runs in
// the calling goroutine; the write pump gets its own.
func (s *session) run(ctx context.Context) {
	go s.writePump()
	s.readLoop(ctx)
	s.close()
}

// close tears the session down: the broadcast subscription is dropped first
// so no further events race the closing channel.
func (s *session) close() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		s.svc.Broadcaster().Unsubscribe(sub)
	}

	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.conn.Close()
}

// send queues a message for the write pump. It drops the message when the
// session is shutting down.
func (s *session) send(msg Message) {
	select {
	case s.out <- msg:
	case <-s.done:
	}
}

func (s *session) sendPush(name string, payload any) {
	msg, err := push(name, payload)
	if err != nil {
		log.Printf("socket: marshal %s push: %v", name, err)
		return
	}
	s.send(msg)
}

// readLoop reads and dispatches request frames until the connection fails.
func (s *session) readLoop(ctx context.Context) {
	s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("socket: read: %v", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("socket: malformed frame: %v", err)
			continue
		}
		if msg.ID == nil {
			// Clientside pushes are not part of the protocol.
			continue
		}
		s.dispatch(ctx, *msg.ID, msg.Name, msg.Data)
	}
}

// writePump owns all writes to the connection, interleaving queued messages
// with keepalive pings.
func (s *session) writePump() {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteJSON(msg); err != nil {
				s.conn.Close()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.conn.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// attach binds the session to a pad, replacing any previous attachment.
func (s *session) attach(pad *types.Pad, perm types.Permission) {
	s.mu.Lock()
	prev := s.sub
	s.pad = pad
	s.perm = perm
	s.view = nil
	s.listening = false
	s.sub = s.svc.Broadcaster().Subscribe(pad.ID)
	sub := s.sub
	s.mu.Unlock()

	if prev != nil {
		s.svc.Broadcaster().Unsubscribe(prev)
	}
	s.vp.Attach(pad.ID)

	go s.eventLoop(sub)
}

// attachment returns the current pad and permission, or a nil pad when the
// session has not attached yet.
func (s *session) attachment() (*types.Pad, types.Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pad, s.perm
}

// eventLoop forwards broadcast events to the client, filtered to what this
// session should see: line points are cut to the session's viewport, pad
// data is stripped to the session's permission, and history events are
// forwarded only while the client listens.
func (s *session) eventLoop(sub *broadcast.Subscriber) {
	for ev := range sub.Events() {
		s.forwardEvent(ev)
	}
}

func (s *session) forwardEvent(ev broadcast.Event) {
	s.mu.Lock()
	perm := s.perm
	view := s.view
	listening := s.listening
	s.mu.Unlock()

	switch ev.Name {
	case types.EventPadData:
		pad, ok := ev.Data.(*types.Pad)
		if !ok {
			return
		}
		s.mu.Lock()
		s.pad = pad
		s.mu.Unlock()
		s.sendPush(types.EventPadData, pad.StripTokens(perm))

	case types.EventLinePoints:
		payload, ok := ev.Data.(types.LinePointsPayload)
		if !ok {
			return
		}
		if view == nil {
			// Nothing is visible before the first viewport.
			return
		}
		visible := payload.TrackPoints[:0:0]
		for _, p := range payload.TrackPoints {
			if view.ContainsTrackPoint(p) {
				visible = append(visible, p)
			}
		}
		if len(visible) == 0 && !payload.Reset {
			return
		}
		s.sendPush(types.EventLinePoints, types.LinePointsPayload{
			ID:          payload.ID,
			TrackPoints: visible,
			Reset:       payload.Reset,
		})

	case types.EventHistory:
		if !listening {
			return
		}
		s.sendPush(types.EventHistory, ev.Data)

	case types.EventDeletePad:
		s.sendPush(types.EventDeletePad, ev.Data)
		s.mu.Lock()
		s.pad = nil
		s.view = nil
		s.mu.Unlock()

	default:
		s.sendPush(ev.Name, ev.Data)
	}
}

// fillHandler adapts the session to the viewport manager's delivery
// callbacks during a differential fill.
type fillHandler struct {
	s *session
}

func (h fillHandler) HandleMarkers(markers []*types.Marker) error {
	for _, m := range markers {
		h.s.sendPush(types.EventMarker, m)
	}
	return nil
}

func (h fillHandler) HandleLines(lines []*types.Line) error {
	for _, l := range lines {
		h.s.sendPush(types.EventLine, l)
	}
	return nil
}

func (h fillHandler) HandleLinePoints(lineID string, points []types.TrackPoint, reset bool) error {
	h.s.sendPush(types.EventLinePoints, types.LinePointsPayload{
		ID:          lineID,
		TrackPoints: points,
		Reset:       reset,
	})
	return nil
}

var _ viewport.Handler = fillHandler{}

// sendInitialState pushes the pad document plus its non-spatial object
// collections after a successful attach. Markers and line geometry follow
// through the first updateBbox fill.
func (s *session) sendInitialState(ctx context.Context, pad *types.Pad, perm types.Permission) {
	s.sendPush(types.EventPadData, pad.StripTokens(perm))

	if objTypes, err := s.svc.Store().TypesForPad(ctx, pad.ID); err == nil {
		for _, t := range objTypes {
			s.sendPush(types.EventType, t)
		}
	} else {
		log.Printf("socket: initial types: %v", err)
	}

	if views, err := s.svc.Store().ViewsForPad(ctx, pad.ID); err == nil {
		for _, v := range views {
			s.sendPush(types.EventView, v)
		}
	} else {
		log.Printf("socket: initial views: %v", err)
	}
}
