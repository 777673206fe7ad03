package staking

import "time"

// Checkpoint is the last block fully processed for a chain.
type Checkpoint struct {
	Chain     string    `json:"chain"`
	Height    uint64    `json:"height"`
	IndexedAt time.Time `json:"indexedAt"`
}
