package call

import (
	"fmt"

	"github.com/canopy-network/payoutx/pkg/ledger"
)

// Matcher selects the leaf calls Resolve collects.
type Matcher func(Invocation) bool

// Context carries the execution facts needed to interpret a call tree. Every executed best-effort
// batch ends with utility/BatchCompleted or utility/BatchInterrupted; for the latter, children from
// the reported index on never took effect.
type Context struct {
	Events []ledger.Event
}

// NewContext builds a Context from the events emitted by one transaction.
func NewContext(events []ledger.Event) Context {
	return Context{Events: events}
}

// batchEnd is the terminal event of one executed best-effort batch.
type batchEnd struct {
	interrupted bool
	index       int
}

// batchEnds lists BatchInterrupted and BatchCompleted in emission order. Batches finish in
// post-order, so an inner batch's end precedes the end of the batch wrapping it.
func (c Context) batchEnds() []batchEnd {
	var ends []batchEnd
	for _, e := range c.Events {
		switch {
		case e.Is("utility", "BatchCompleted"):
			ends = append(ends, batchEnd{})
		case e.Is("utility", "BatchInterrupted"):
			idx, err := ledger.ArgUint(e.Data, 0)
			if err != nil {
				continue
			}
			ends = append(ends, batchEnd{interrupted: true, index: int(idx)})
		}
	}
	return ends
}

// Target is one resolved leaf. Path holds the child positions taken from the root.
type Target struct {
	Call Invocation
	Path []int
}

// Resolve walks root depth-first and returns every leaf accepted by match, in call order.
// Wrappers are never returned themselves. Each best-effort batch is matched to its own terminal
// event in execution order; one interrupted at i contributes only children [0, i). Trees deeper
// than MaxDepth yield ErrMalformedInvocationTree.
func Resolve(root Invocation, ctx Context, match Matcher) ([]Target, error) {
	if root == nil {
		return nil, nil
	}
	w := walker{match: match, ends: ctx.batchEnds()}
	if err := w.visit(root, 0, nil); err != nil {
		return nil, err
	}
	return w.out, nil
}

type walker struct {
	match Matcher
	ends  []batchEnd
	next  int
	out   []Target
}

func (w *walker) visit(inv Invocation, depth int, path []int) error {
	if depth > MaxDepth {
		return fmt.Errorf("%w: depth %d", ErrMalformedInvocationTree, depth)
	}
	if w.match(inv) {
		w.out = append(w.out, Target{Call: inv, Path: append([]int(nil), path...)})
		return nil
	}

	switch v := inv.(type) {
	case Batch:
		return w.visitBatch(v, depth, path)
	case BatchAll:
		return w.visitAll(v.Calls, depth, path)
	case AsDerivative:
		return w.visitChild(v.Call, depth, path, 0)
	case Proxy:
		return w.visitChild(v.Call, depth, path, 0)
	case ProxyAnnounced:
		return w.visitChild(v.Call, depth, path, 0)
	}
	return nil
}

// visitBatch stops at the child the pending interruption names. A child that is itself a
// best-effort batch never fails, so an interruption seen before it belongs to that child.
func (w *walker) visitBatch(b Batch, depth int, path []int) error {
	for i, c := range b.Calls {
		if end, ok := w.peek(); ok && end.interrupted && end.index == i && !runsBatch(c) {
			w.next++
			return nil
		}
		if err := w.visitChild(c, depth, path, i); err != nil {
			return err
		}
	}
	if end, ok := w.peek(); ok && !end.interrupted {
		w.next++
	}
	return nil
}

func (w *walker) peek() (batchEnd, bool) {
	if w.next >= len(w.ends) {
		return batchEnd{}, false
	}
	return w.ends[w.next], true
}

// runsBatch reports whether inv is a best-effort batch, possibly behind derivative or proxy
// wrappers.
func runsBatch(inv Invocation) bool {
	for {
		switch v := inv.(type) {
		case Batch:
			return true
		case AsDerivative:
			inv = v.Call
		case Proxy:
			inv = v.Call
		case ProxyAnnounced:
			inv = v.Call
		default:
			return false
		}
	}
}

func (w *walker) visitAll(calls []Invocation, depth int, path []int) error {
	for i, c := range calls {
		if err := w.visitChild(c, depth, path, i); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) visitChild(c Invocation, depth int, path []int, i int) error {
	if c == nil {
		return nil
	}
	return w.visit(c, depth+1, append(path, i))
}

// Transfers resolves the balance transfers carried by root.
func Transfers(root Invocation, ctx Context) ([]Transfer, error) {
	targets, err := Resolve(root, ctx, IsTransfer)
	if err != nil {
		return nil, err
	}
	out := make([]Transfer, 0, len(targets))
	for _, t := range targets {
		out = append(out, t.Call.(Transfer))
	}
	return out, nil
}

// Payouts resolves the payoutStakers claims carried by root.
func Payouts(root Invocation, ctx Context) ([]PayoutStakers, error) {
	targets, err := Resolve(root, ctx, IsPayoutStakers)
	if err != nil {
		return nil, err
	}
	out := make([]PayoutStakers, 0, len(targets))
	for _, t := range targets {
		out = append(out, t.Call.(PayoutStakers))
	}
	return out, nil
}
