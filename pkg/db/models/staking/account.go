package staking

import (
	"encoding/json"
	"time"
)

// Account is created lazily on first reference. NextNonce is re-synced from chain state on every
// touch.
type Account struct {
	ID        string             `json:"id"`
	PubKey    string             `json:"pubKey"`
	NextNonce uint64             `json:"nextNonce"`
	Identity  []IdentitySnapshot `json:"identity,omitempty"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// IdentitySnapshot is the chain identity record observed at Block.
type IdentitySnapshot struct {
	Block uint64          `json:"block"`
	Info  json.RawMessage `json:"info"`
}

// AppendIdentity records info unless it is identical to the latest snapshot.
func (a *Account) AppendIdentity(block uint64, info json.RawMessage) bool {
	if n := len(a.Identity); n > 0 && string(a.Identity[n-1].Info) == string(info) {
		return false
	}
	a.Identity = append(a.Identity, IdentitySnapshot{Block: block, Info: info})
	return true
}

// LatestIdentity returns the most recent identity snapshot, if any.
func (a *Account) LatestIdentity() (IdentitySnapshot, bool) {
	if len(a.Identity) == 0 {
		return IdentitySnapshot{}, false
	}
	return a.Identity[len(a.Identity)-1], true
}
