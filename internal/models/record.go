package models

import "encoding/json"

// Record is a versioned document mutated only via optimistic-concurrency
// updates. A missing record is logical version 0 with empty data.
type Record struct {
	ID        string          `json:"id"`
	Version   int64           `json:"version"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt int64           `json:"updatedAt"` // Unix ms
}
