// Package session implements the per-connection protocol state machine
// that ties a peer's live connection to presence, channels, and routing.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/blackboard-protocol/blackboard/internal/bus"
	"github.com/blackboard-protocol/blackboard/internal/metrics"
	"github.com/blackboard-protocol/blackboard/internal/models"
	"github.com/blackboard-protocol/blackboard/internal/presence"
)

// State of a session. A session moves CONNECTING → ACTIVE on identity
// binding and ACTIVE → CLOSED on transport close or error.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

// Handler owns the protocol state for one live connection: the peer id
// fixed at creation and the set of channels this session subscribed to,
// used for cleanup. It is driven by a single frame-reading loop; Close
// may be called concurrently and runs its cleanup exactly once.
type Handler struct {
	peerID   string
	handle   presence.Handle
	registry *presence.Registry
	channels *bus.Bus
	logger   zerolog.Logger

	mu         sync.Mutex
	state      State
	subscribed map[string]struct{}

	closeOnce sync.Once
}

// New creates a session handler in the CONNECTING state. The peer's
// identity must already be established by the authentication layer; it
// is never re-derived from frame contents.
func New(peerID string, handle presence.Handle, registry *presence.Registry, channels *bus.Bus, logger zerolog.Logger) *Handler {
	return &Handler{
		peerID:     peerID,
		handle:     handle,
		registry:   registry,
		channels:   channels,
		logger:     logger.With().Str("peerId", peerID).Logger(),
		state:      StateConnecting,
		subscribed: make(map[string]struct{}),
	}
}

// PeerID returns the identity this session is bound to.
func (h *Handler) PeerID() string {
	return h.peerID
}

// State returns the current lifecycle state.
func (h *Handler) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Start transitions CONNECTING → ACTIVE and registers the session's
// handle with the presence registry.
func (h *Handler) Start(metadata map[string]any) {
	h.mu.Lock()
	if h.state != StateConnecting {
		h.mu.Unlock()
		return
	}
	h.state = StateActive
	h.mu.Unlock()

	h.registry.Register(h.peerID, h.handle, metadata)
	metrics.ActiveSessions.Inc()
	h.logger.Info().Msg("session active")
}

// Close transitions to CLOSED and releases everything this session
// owns: the presence registration and every channel membership. Safe to
// call from both the close and error paths; cleanup runs once.
func (h *Handler) Close() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		wasActive := h.state == StateActive
		h.state = StateClosed
		channels := make([]string, 0, len(h.subscribed))
		for channelID := range h.subscribed {
			channels = append(channels, channelID)
		}
		h.subscribed = make(map[string]struct{})
		h.mu.Unlock()

		if !wasActive {
			return
		}

		h.registry.Unregister(h.peerID)
		for _, channelID := range channels {
			h.channels.Leave(channelID, h.peerID)
		}
		metrics.ActiveSessions.Dec()
		h.logger.Info().Msg("session closed")
	})
}

// channelPayload is the payload shape shared by the channel frames.
type channelPayload struct {
	ChannelID string          `json:"channelId"`
	Content   json.RawMessage `json:"content,omitempty"`
}

// HandleFrame parses and dispatches one inbound frame. Every per-frame
// failure becomes an ERROR response; the connection stays open and
// subsequent frames are processed normally.
func (h *Handler) HandleFrame(ctx context.Context, raw []byte) {
	var frame models.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.sendError("Invalid JSON")
		return
	}
	if frame.Type == "" {
		h.sendError("Missing message type")
		return
	}

	h.logger.Debug().Str("type", frame.Type).Str("targetId", frame.TargetID).Msg("received frame")
	metrics.FramesTotal.WithLabelValues(frame.Type).Inc()

	switch frame.Type {
	case models.FramePing:
		h.send(models.Frame{Type: models.FramePong, Timestamp: time.Now().UnixMilli()})

	case models.FrameMessage:
		h.handleDirect(ctx, frame)

	case models.FrameDiscover:
		h.handleDiscover(ctx, frame)

	case models.FrameJoinChannel:
		h.handleJoin(frame)

	case models.FrameLeaveChannel:
		h.handleLeave(frame)

	case models.FrameChannelMessage:
		h.handleChannelMessage(ctx, frame)

	default:
		// Unrecognized frame types are ignored.
	}
}

// handleDirect routes a point-to-point message. A local target gets the
// frame delivered directly; a remote route is acknowledged as forwarded
// without delivery (cross-node transport is the integrator's concern).
func (h *Handler) handleDirect(ctx context.Context, frame models.Frame) {
	if frame.TargetID == "" {
		h.sendError("Target ID required for MESSAGE")
		return
	}

	peer, err := h.registry.FindPeer(ctx, frame.TargetID)
	if err != nil {
		if errors.Is(err, presence.ErrNotFound) {
			h.sendError("Target peer not found")
		} else {
			h.sendError("Peer lookup failed")
		}
		return
	}

	if peer.Local {
		deliverErr := peer.Handle.Send(models.Frame{
			Type:      models.FrameMessage,
			ID:        frame.ID,
			SenderID:  h.peerID,
			Payload:   frame.Payload,
			Timestamp: time.Now().UnixMilli(),
		})
		if deliverErr != nil {
			h.logger.Warn().Err(deliverErr).Str("targetId", frame.TargetID).Msg("direct delivery failed")
		} else {
			metrics.DirectMessagesDelivered.Inc()
		}
		h.send(models.Frame{Type: models.FrameAck, ID: frame.ID})
		return
	}

	h.logger.Info().Str("targetId", frame.TargetID).Str("route", peer.Route).Msg("routing to remote peer")
	h.send(models.Frame{Type: models.FrameAck, ID: frame.ID, Status: models.StatusForwarded})
}

func (h *Handler) handleDiscover(ctx context.Context, frame models.Frame) {
	if frame.TargetID == "" {
		h.sendError("Target ID required for DISCOVER")
		return
	}

	_, err := h.registry.FindPeer(ctx, frame.TargetID)
	found := err == nil
	h.send(models.Frame{
		Type:     models.FrameDiscoveryResult,
		TargetID: frame.TargetID,
		Found:    &found,
	})
}

func (h *Handler) handleJoin(frame models.Frame) {
	p, ok := h.parseChannelPayload(frame, false)
	if !ok {
		return
	}

	h.channels.Join(p.ChannelID, h.peerID)
	h.mu.Lock()
	if h.state == StateActive {
		h.subscribed[p.ChannelID] = struct{}{}
	}
	h.mu.Unlock()

	h.send(models.Frame{Type: models.FrameAck, ID: frame.ID, Status: models.StatusJoined, ChannelID: p.ChannelID})
}

func (h *Handler) handleLeave(frame models.Frame) {
	p, ok := h.parseChannelPayload(frame, false)
	if !ok {
		return
	}

	h.channels.Leave(p.ChannelID, h.peerID)
	h.mu.Lock()
	delete(h.subscribed, p.ChannelID)
	h.mu.Unlock()

	h.send(models.Frame{Type: models.FrameAck, ID: frame.ID, Status: models.StatusLeft, ChannelID: p.ChannelID})
}

// handleChannelMessage publishes to the channel and fans the message
// out to every subscriber with a local live handle, sender included:
// the echo doubles as the publisher's durability and ordering
// confirmation.
func (h *Handler) handleChannelMessage(ctx context.Context, frame models.Frame) {
	p, ok := h.parseChannelPayload(frame, true)
	if !ok {
		return
	}

	msg := h.channels.Publish(p.ChannelID, h.peerID, p.Content)
	metrics.ChannelMessagesPublished.Inc()

	out := models.Frame{
		Type:      models.FrameChannelMessage,
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
		SenderID:  msg.SenderID,
		Payload:   msg.Payload,
		Timestamp: msg.Timestamp,
	}

	// Snapshot-then-iterate: a join or leave racing this publish may or
	// may not see the message.
	for _, subscriberID := range h.channels.Subscribers(p.ChannelID) {
		peer, err := h.registry.FindPeer(ctx, subscriberID)
		if err != nil || !peer.Local {
			continue
		}
		if err := peer.Handle.Send(out); err != nil {
			h.logger.Warn().Err(err).Str("subscriberId", subscriberID).Str("channelId", p.ChannelID).Msg("fan-out delivery failed")
		}
	}

	h.send(models.Frame{Type: models.FrameAck, ID: frame.ID})
}

// parseChannelPayload extracts and validates the channel payload.
// Sends an error response and returns ok=false on validation failure.
func (h *Handler) parseChannelPayload(frame models.Frame, needContent bool) (channelPayload, bool) {
	var p channelPayload
	if len(frame.Payload) > 0 {
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			h.sendError("Invalid payload")
			return p, false
		}
	}
	if p.ChannelID == "" {
		h.sendError("channelId required")
		return p, false
	}
	if needContent && (len(p.Content) == 0 || string(p.Content) == "null") {
		h.sendError("channelId and content required")
		return p, false
	}
	return p, true
}

func (h *Handler) send(frame models.Frame) {
	if err := h.handle.Send(frame); err != nil {
		h.logger.Debug().Err(err).Str("type", frame.Type).Msg("response dropped, session handle closed")
	}
}

func (h *Handler) sendError(message string) {
	metrics.FrameErrors.Inc()
	h.send(models.ErrorFrame(message))
}
