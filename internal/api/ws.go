package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/blackboard-protocol/blackboard/internal/api/middleware"
	"github.com/blackboard-protocol/blackboard/internal/bus"
	"github.com/blackboard-protocol/blackboard/internal/models"
	"github.com/blackboard-protocol/blackboard/internal/presence"
	"github.com/blackboard-protocol/blackboard/internal/session"
)

const (
	writeTimeout   = 10 * time.Second
	sendBufferSize = 64
	maxFrameSize   = 256 * 1024
)

var errSessionClosed = errors.New("session closed")
var errSendBufferFull = errors.New("send buffer full")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Agents connect from anywhere; identity comes from the token.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSServer upgrades authenticated requests to the duplex frame stream
// and runs one session per connection.
type WSServer struct {
	logger   zerolog.Logger
	registry *presence.Registry
	channels *bus.Bus
}

// NewWSServer creates the websocket endpoint.
func NewWSServer(logger zerolog.Logger, registry *presence.Registry, channels *bus.Bus) *WSServer {
	return &WSServer{logger: logger, registry: registry, channels: channels}
}

// Handle upgrades the connection and pumps frames into a session
// handler until the transport closes or errors. Session cleanup runs
// exactly once on either path.
func (s *WSServer) Handle(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxFrameSize)

	s.logger.Info().Str("peerId", identity.ID).Str("name", identity.Name).Msg("websocket connection initiated")

	handle := newWSHandle(conn)
	go handle.writePump()

	metadata := map[string]any{"ip": r.RemoteAddr}
	for k, v := range identity.Metadata {
		metadata[k] = v
	}
	if identity.Name != "" {
		metadata["name"] = identity.Name
	}

	sess := session.New(identity.ID, handle, s.registry, s.channels, s.logger)
	sess.Start(metadata)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn().Err(err).Str("peerId", identity.ID).Msg("websocket error")
			}
			break
		}
		sess.HandleFrame(r.Context(), raw)
	}

	sess.Close()
	handle.Close()
	s.logger.Info().Str("peerId", identity.ID).Msg("websocket disconnected")
}

// wsHandle adapts a gorilla connection into a presence.Handle. gorilla
// permits one concurrent writer, so all frames funnel through a send
// channel drained by a single write pump.
type wsHandle struct {
	conn *websocket.Conn
	send chan models.Frame

	closeOnce sync.Once
	done      chan struct{}
}

func newWSHandle(conn *websocket.Conn) *wsHandle {
	return &wsHandle{
		conn: conn,
		send: make(chan models.Frame, sendBufferSize),
		done: make(chan struct{}),
	}
}

// Send enqueues a frame for delivery. It never blocks: a slow consumer
// whose buffer is full loses the frame rather than stalling fan-out.
func (h *wsHandle) Send(frame models.Frame) error {
	select {
	case <-h.done:
		return errSessionClosed
	default:
	}

	select {
	case h.send <- frame:
		return nil
	case <-h.done:
		return errSessionClosed
	default:
		return errSendBufferFull
	}
}

// Close tears down the transport. Safe to call multiple times.
func (h *wsHandle) Close() error {
	h.closeOnce.Do(func() { close(h.done) })
	return h.conn.Close()
}

func (h *wsHandle) writePump() {
	for {
		select {
		case frame := <-h.send:
			h.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := h.conn.WriteJSON(frame); err != nil {
				h.Close()
				return
			}
		case <-h.done:
			return
		}
	}
}
