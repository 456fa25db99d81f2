package models

// Project maps a human-readable name to a project id and its dedicated
// coordination channel.
type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ChannelID string `json:"channelId"`
	CreatedAt int64  `json:"created"` // Unix ms
}
