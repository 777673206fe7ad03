package ledger

import (
	"encoding/json"
	"fmt"
	"time"
)

// Block is a decoded block as delivered by the host: header fields, the signed and unsigned
// transactions in index order and every event emitted while executing the block.
type Block struct {
	Number     uint64    `json:"number"`
	Hash       string    `json:"hash"`
	ParentHash string    `json:"parentHash"`
	Timestamp  time.Time `json:"timestamp"`
	// AuthorIndex is the index of the block author in the current session validator set, taken
	// from the pre-runtime digest. Nil when the digest carried no author.
	AuthorIndex  *uint32       `json:"authorIndex,omitempty"`
	Transactions []Transaction `json:"transactions"`
	Events       []Event       `json:"events"`
}

// Transaction is a decoded extrinsic. Call carries the raw `{"module","method","args"}` tree,
// decoded lazily by the call package.
type Transaction struct {
	Index   uint32          `json:"index"`
	Hash    string          `json:"hash"`
	Hex     string          `json:"hex"`
	Signed  bool            `json:"signed"`
	Signer  string          `json:"signer,omitempty"`
	Success bool            `json:"success"`
	Call    json.RawMessage `json:"call"`
}

// Event is a runtime event. TxIndex is nil for events emitted outside of an extrinsic
// (initialization / finalization phases).
type Event struct {
	Index   uint32            `json:"index"`
	Module  string            `json:"module"`
	Method  string            `json:"method"`
	Data    []json.RawMessage `json:"data"`
	TxIndex *uint32           `json:"txIndex,omitempty"`
}

// Key is the dispatch key, e.g. "staking/Rewarded".
func (e Event) Key() string {
	return e.Module + "/" + e.Method
}

// Is reports whether the event has the given module and method.
func (e Event) Is(module, method string) bool {
	return e.Module == module && e.Method == method
}

// ID is the event identifier used for history rows: "<block>-<eventIndex>".
func (e Event) ID(blockNumber uint64) string {
	return fmt.Sprintf("%d-%d", blockNumber, e.Index)
}

// ID is the transaction identifier used for history rows: "<block>-<txIndex>".
func (t Transaction) ID(blockNumber uint64) string {
	return fmt.Sprintf("%d-%d", blockNumber, t.Index)
}

// Transaction returns the transaction that emitted e, if any.
func (b *Block) Transaction(e Event) (*Transaction, bool) {
	if e.TxIndex == nil {
		return nil, false
	}
	for i := range b.Transactions {
		if b.Transactions[i].Index == *e.TxIndex {
			return &b.Transactions[i], true
		}
	}
	return nil, false
}

// EventsOf returns the events emitted by the transaction at txIndex, in emission order.
func (b *Block) EventsOf(txIndex uint32) []Event {
	var out []Event
	for _, e := range b.Events {
		if e.TxIndex != nil && *e.TxIndex == txIndex {
			out = append(out, e)
		}
	}
	return out
}
