package models

// Agent status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Agent is the presence record for a peer. One record exists per
// ever-seen peer; the status flips as sessions come and go.
type Agent struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Status   string         `json:"status"`
	LastSeen int64          `json:"lastSeen"` // Unix ms
	Metadata map[string]any `json:"metadata,omitempty"`
}
