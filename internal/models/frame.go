package models

import "encoding/json"

// Frame types understood by the session protocol. Unrecognized types are
// ignored by the server.
const (
	FramePing            = "PING"
	FramePong            = "PONG"
	FrameMessage         = "MESSAGE"
	FrameDiscover        = "DISCOVER"
	FrameDiscoveryResult = "DISCOVERY_RESULT"
	FrameAck             = "ACK"
	FrameError           = "ERROR"
	FrameJoinChannel     = "JOIN_CHANNEL"
	FrameLeaveChannel    = "LEAVE_CHANNEL"
	FrameChannelMessage  = "CHANNEL_MESSAGE"
)

// Ack status values.
const (
	StatusJoined    = "JOINED"
	StatusLeft      = "LEFT"
	StatusForwarded = "FORWARDED"
)

// Frame is a single protocol message on the duplex stream. Fields are
// populated depending on the frame type; ID carries the client's
// correlation id and is echoed on ACKs.
type Frame struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	TargetID  string          `json:"targetId,omitempty"`
	SenderID  string          `json:"senderId,omitempty"`
	ChannelID string          `json:"channelId,omitempty"`
	Status    string          `json:"status,omitempty"`
	Found     *bool           `json:"found,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// ErrorFrame builds an ERROR frame with the given message. Error frames
// never terminate the session.
func ErrorFrame(message string) Frame {
	payload, _ := json.Marshal(map[string]string{"message": message})
	return Frame{Type: FrameError, Payload: payload}
}
