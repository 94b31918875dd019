package socket

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/padsync/padsync/internal/config"
	"github.com/padsync/padsync/internal/pads"
)

// Server upgrades HTTP requests to websocket sessions over the pad service.
type Server struct {
	svc      *pads.Service
	cfg      config.ServerConfig
	upgrader websocket.Upgrader
}

// NewServer creates the socket endpoint.
func NewServer(svc *pads.Service, cfg config.ServerConfig) *Server {
	return &Server{
		svc: svc,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Capability tokens are the access control; origins are not.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and runs its session until it drops.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("socket: upgrade: %v", err)
		return
	}

	sess := newSession(conn, s.svc, s.cfg.ReadTimeout, s.cfg.WriteTimeout, s.cfg.PingInterval, s.cfg.EventBuffer)
	sess.run(r.Context())
}
