package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/1ureka/meshcall/internal/protocol"
	"github.com/1ureka/meshcall/internal/util"
)

const shutdownTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server exposes a Hub over HTTP.
type Server struct {
	hub  *Hub
	http *http.Server
}

func NewServer(addr string, hub *Hub) *Server {
	s := &Server{hub: hub}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router returns the HTTP routes:
//
//	GET /ws?roomid=<room>&username=<name>  WebSocket signaling
//	GET /health                             liveness and counts
//	GET /rooms/{roomID}                     members of a room
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.serveWS)
	r.Get("/health", s.health)
	r.Get("/rooms/{roomID}", s.roomMembers)

	return cors.Default().Handler(r)
}

// ListenAndServe runs the hub and the HTTP server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	hubDone := make(chan struct{})
	go func() {
		s.hub.Run(hubCtx)
		close(hubDone)
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- s.http.Serve(ln) }()
	util.LogSuccess("Relay listening on %s", ln.Addr())

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.http.SetKeepAlivesEnabled(false)
	// Shutdown does not wait for hijacked WebSocket connections; the hub
	// closes those.
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		util.LogWarning("http shutdown: %v", err)
	}

	stopHub()
	<-hubDone
	return serveErr
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	roomID := protocol.RoomID(r.URL.Query().Get("roomid"))
	if roomID == "" {
		http.Error(w, "missing roomid", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		util.LogDebug("upgrade: %v", err)
		return
	}

	m := newMember(s.hub, conn, roomID, r.URL.Query().Get("username"))
	if err := s.hub.join(m); err != nil {
		code := websocket.ClosePolicyViolation
		if errors.Is(err, ErrShuttingDown) {
			code = websocket.CloseGoingAway
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, err.Error()),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go m.writePump()
	m.readPump()
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	rooms, peers := s.hub.Counts()
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"rooms":  rooms,
		"peers":  peers,
	})
}

func (s *Server) roomMembers(w http.ResponseWriter, r *http.Request) {
	id := protocol.RoomID(chi.URLParam(r, "roomID"))
	members := s.hub.Members(id)
	if members == nil {
		members = []protocol.ParticipantID{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room":    id,
		"members": members,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		util.LogDebug("write response: %v", err)
	}
}
