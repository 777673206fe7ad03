package staking

import (
	"time"
)

// History ids: "<block>-<index>" plus a side suffix for transfers.
const (
	SideFrom = "from"
	SideTo   = "to"
)

// NoEvent is the event index recorded for transfers that never emitted an event.
const NoEvent int64 = -1

// HistoryElement is one per-account ledger row. Exactly one of Transfer or Extrinsic is set.
type HistoryElement struct {
	ID            string            `json:"id"`
	Address       string            `json:"address"`
	BlockNumber   uint64            `json:"blockNumber"`
	ExtrinsicHash string            `json:"extrinsicHash,omitempty"`
	ExtrinsicIdx  *uint32           `json:"extrinsicIdx,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	Transfer      *HistoryTransfer  `json:"transfer,omitempty"`
	Extrinsic     *HistoryExtrinsic `json:"extrinsic,omitempty"`
}

// HistoryTransfer is the transfer payload. Amounts and fees are decimal strings.
type HistoryTransfer struct {
	Amount   string `json:"amount"`
	From     string `json:"from"`
	To       string `json:"to"`
	Fee      string `json:"fee"`
	EventIdx int64  `json:"eventIdx"`
	Success  bool   `json:"success"`
}

// HistoryExtrinsic is the generic signed transaction payload.
type HistoryExtrinsic struct {
	Hash    string `json:"hash"`
	Module  string `json:"module"`
	Call    string `json:"call"`
	Success bool   `json:"success"`
	Fee     string `json:"fee"`
}

// Kind is "transfer" or "extrinsic".
func (h *HistoryElement) Kind() string {
	if h.Transfer != nil {
		return "transfer"
	}
	return "extrinsic"
}
