package models

import "encoding/json"

// ChannelMessage is an immutable message published to a channel and
// appended to the durable log.
type ChannelMessage struct {
	ID        string          `json:"id"` // ULID
	ChannelID string          `json:"channelId"`
	SenderID  string          `json:"senderId"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"` // Unix ms
}
