// Package call models decoded extrinsic calls as a closed set of variants and resolves the
// semantically relevant leaf calls hidden behind batch, derivative and proxy wrappers.
package call

import (
	"strings"

	"github.com/holiman/uint256"
)

// Invocation is a node of a decoded call tree. The concrete type is one of the variants in this
// file; anything else decodes to Unknown.
type Invocation interface {
	Module() string
	Method() string
	isInvocation()
}

// Transfer is balances.transfer / transferKeepAlive / transferAllowDeath.
type Transfer struct {
	Name  string
	Dest  string
	Value *uint256.Int
}

// PayoutStakers is staking.payoutStakers(validatorStash, era).
type PayoutStakers struct {
	Stash string
	Era   uint32
}

// Batch is utility.batch: best effort, stops at the first failing child and keeps prior effects.
type Batch struct {
	Calls []Invocation
}

// BatchAll is utility.batchAll: children either all succeed or are all reverted.
type BatchAll struct {
	Calls []Invocation
}

// AsDerivative is utility.asDerivative(index, call).
type AsDerivative struct {
	Index uint16
	Call  Invocation
}

// Proxy is proxy.proxy(real, forceProxyType, call).
type Proxy struct {
	Real           string
	ForceProxyType string
	Call           Invocation
}

// ProxyAnnounced is proxy.proxyAnnounced(delegate, real, forceProxyType, call).
type ProxyAnnounced struct {
	Delegate       string
	Real           string
	ForceProxyType string
	Call           Invocation
}

// TimestampSet is timestamp.set(now), the inherent carried by every block.
type TimestampSet struct {
	Now uint64
}

// Unknown is any call shape the indexer does not interpret.
type Unknown struct {
	Mod  string
	Meth string
}

// Invalid is a recognised call whose arguments could not be read. It resolves to nothing.
type Invalid struct {
	Mod  string
	Meth string
	Err  error
}

func (Transfer) Module() string       { return "balances" }
func (t Transfer) Method() string     { return t.Name }
func (PayoutStakers) Module() string  { return "staking" }
func (PayoutStakers) Method() string  { return "payoutStakers" }
func (Batch) Module() string          { return "utility" }
func (Batch) Method() string          { return "batch" }
func (BatchAll) Module() string       { return "utility" }
func (BatchAll) Method() string       { return "batchAll" }
func (AsDerivative) Module() string   { return "utility" }
func (AsDerivative) Method() string   { return "asDerivative" }
func (Proxy) Module() string          { return "proxy" }
func (Proxy) Method() string          { return "proxy" }
func (ProxyAnnounced) Module() string { return "proxy" }
func (ProxyAnnounced) Method() string { return "proxyAnnounced" }
func (TimestampSet) Module() string   { return "timestamp" }
func (TimestampSet) Method() string   { return "set" }
func (u Unknown) Module() string      { return u.Mod }
func (u Unknown) Method() string      { return u.Meth }
func (c Invalid) Module() string      { return c.Mod }
func (c Invalid) Method() string      { return c.Meth }

func (Transfer) isInvocation()       {}
func (PayoutStakers) isInvocation()  {}
func (Batch) isInvocation()          {}
func (BatchAll) isInvocation()       {}
func (AsDerivative) isInvocation()   {}
func (Proxy) isInvocation()          {}
func (ProxyAnnounced) isInvocation() {}
func (TimestampSet) isInvocation()   {}
func (Unknown) isInvocation()        {}
func (Invalid) isInvocation()        {}

// IsTransfer matches transfer-shaped leaves.
func IsTransfer(inv Invocation) bool {
	_, ok := inv.(Transfer)
	return ok
}

// IsPayoutStakers matches payout claim leaves.
func IsPayoutStakers(inv Invocation) bool {
	_, ok := inv.(PayoutStakers)
	return ok
}

// IsWrapper reports whether inv is one of the indirection shapes the walker descends into.
func IsWrapper(inv Invocation) bool {
	switch inv.(type) {
	case Batch, BatchAll, AsDerivative, Proxy, ProxyAnnounced:
		return true
	default:
		return false
	}
}

// canonical folds "batch_all", "batchAll" and "BatchAll" into one spelling.
func canonical(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", ""))
}
