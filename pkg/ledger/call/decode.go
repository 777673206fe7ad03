package call

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/canopy-network/payoutx/pkg/ledger"
)

// MaxDepth bounds both decoding and resolution. Real runtimes cap call nesting well below this.
const MaxDepth = 32

// ErrMalformedInvocationTree is returned when a call tree nests deeper than MaxDepth.
var ErrMalformedInvocationTree = errors.New("malformed invocation tree")

type rawCall struct {
	Module string            `json:"module"`
	Method string            `json:"method"`
	Args   []json.RawMessage `json:"args"`
}

// Decode builds the variant tree from the `{"module","method","args":[...]}` form. Unrecognised
// calls decode to Unknown and recognised calls with unusable arguments to Invalid, so one bad
// sibling never hides the rest of a batch. Only corrupt JSON and trees deeper than MaxDepth fail.
func Decode(raw json.RawMessage) (Invocation, error) {
	return decode(raw, 0)
}

// Name returns the module and method of the top-level call without decoding its arguments.
func Name(raw json.RawMessage) (module, method string, err error) {
	var rc rawCall
	if err := json.Unmarshal(raw, &rc); err != nil {
		return "", "", fmt.Errorf("decode call: %w", err)
	}
	return rc.Module, rc.Method, nil
}

func decode(raw json.RawMessage, depth int) (Invocation, error) {
	if depth > MaxDepth {
		return nil, fmt.Errorf("%w: nesting exceeds %d", ErrMalformedInvocationTree, MaxDepth)
	}
	var rc rawCall
	if err := json.Unmarshal(raw, &rc); err != nil {
		return nil, fmt.Errorf("decode call: %w", err)
	}
	if rc.Module == "" || rc.Method == "" {
		return nil, fmt.Errorf("decode call: missing module or method")
	}

	module, method := canonical(rc.Module), canonical(rc.Method)
	switch {
	case module == "balances" && (method == "transfer" || method == "transferkeepalive" || method == "transferallowdeath"):
		return decodeTransfer(rc), nil
	case module == "staking" && method == "payoutstakers":
		return decodePayoutStakers(rc), nil
	case module == "utility" && method == "batch":
		calls, bad, err := decodeCalls(rc, 0, depth)
		if err != nil || bad != nil {
			return bad, err
		}
		return Batch{Calls: calls}, nil
	case module == "utility" && method == "batchall":
		calls, bad, err := decodeCalls(rc, 0, depth)
		if err != nil || bad != nil {
			return bad, err
		}
		return BatchAll{Calls: calls}, nil
	case module == "utility" && method == "asderivative":
		inner, err := decodeChild(rc, 1, depth)
		if err != nil {
			return nil, err
		}
		index, _ := ledger.ArgUint(rc.Args, 0)
		return AsDerivative{Index: uint16(index), Call: inner}, nil
	case module == "proxy" && method == "proxy":
		inner, err := decodeChild(rc, 2, depth)
		if err != nil {
			return nil, err
		}
		realAcct, _ := accountArg(rc.Args, 0)
		return Proxy{Real: realAcct, ForceProxyType: optionalString(rc.Args, 1), Call: inner}, nil
	case module == "proxy" && method == "proxyannounced":
		inner, err := decodeChild(rc, 3, depth)
		if err != nil {
			return nil, err
		}
		delegate, _ := accountArg(rc.Args, 0)
		realAcct, _ := accountArg(rc.Args, 1)
		return ProxyAnnounced{Delegate: delegate, Real: realAcct, ForceProxyType: optionalString(rc.Args, 2), Call: inner}, nil
	case module == "timestamp" && method == "set":
		now, _ := ledger.ArgUint(rc.Args, 0)
		return TimestampSet{Now: now}, nil
	default:
		return Unknown{Mod: rc.Module, Meth: rc.Method}, nil
	}
}

func invalid(rc rawCall, format string, args ...any) Invalid {
	return Invalid{Mod: rc.Module, Meth: rc.Method, Err: fmt.Errorf(format, args...)}
}

func decodeTransfer(rc rawCall) Invocation {
	dest, err := accountArg(rc.Args, 0)
	if err != nil {
		return invalid(rc, "balances.%s dest: %w", rc.Method, err)
	}
	value, err := ledger.ArgBalance(rc.Args, 1)
	if err != nil {
		return invalid(rc, "balances.%s value: %w", rc.Method, err)
	}
	return Transfer{Name: rc.Method, Dest: dest, Value: value}
}

func decodePayoutStakers(rc rawCall) Invocation {
	stash, err := accountArg(rc.Args, 0)
	if err != nil {
		return invalid(rc, "staking.payoutStakers stash: %w", err)
	}
	era, err := ledger.ArgUint(rc.Args, 1)
	if err != nil {
		return invalid(rc, "staking.payoutStakers era: %w", err)
	}
	return PayoutStakers{Stash: stash, Era: uint32(era)}
}

// decodeCalls decodes the call list at args[idx]. A missing or non-list argument makes the batch
// itself Invalid; an undecodable child is an error.
func decodeCalls(rc rawCall, idx, depth int) ([]Invocation, Invocation, error) {
	if idx >= len(rc.Args) {
		return nil, invalid(rc, "%s.%s: missing calls argument", rc.Module, rc.Method), nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(rc.Args[idx], &items); err != nil {
		return nil, invalid(rc, "%s.%s calls: %w", rc.Module, rc.Method, err), nil
	}
	calls := make([]Invocation, 0, len(items))
	for _, item := range items {
		inv, err := decode(item, depth+1)
		if err != nil {
			return nil, nil, err
		}
		calls = append(calls, inv)
	}
	return calls, nil, nil
}

// decodeChild decodes the wrapped call at args[idx]; a missing argument yields an Invalid child.
func decodeChild(rc rawCall, idx, depth int) (Invocation, error) {
	if idx >= len(rc.Args) {
		return invalid(rc, "%s.%s: missing call argument", rc.Module, rc.Method), nil
	}
	return decode(rc.Args[idx], depth+1)
}

// accountArg accepts a plain account string or a MultiAddress object such as {"id": "5F..."}.
// The index and raw forms name no account without chain state and are rejected.
func accountArg(args []json.RawMessage, i int) (string, error) {
	if s, err := ledger.ArgString(args, i); err == nil {
		return s, nil
	}
	if i >= len(args) {
		return "", fmt.Errorf("arg %d out of range (%d args)", i, len(args))
	}
	var multi map[string]json.RawMessage
	if err := json.Unmarshal(args[i], &multi); err != nil {
		return "", fmt.Errorf("arg %d: expected account, got %s", i, string(args[i]))
	}
	for _, key := range []string{"id", "Id", "address20", "Address20", "address32", "Address32"} {
		raw, ok := multi[key]
		if !ok {
			continue
		}
		var v string
		if err := json.Unmarshal(raw, &v); err == nil && v != "" {
			return v, nil
		}
	}
	for _, key := range []string{"index", "Index", "raw", "Raw"} {
		if _, ok := multi[key]; ok {
			return "", fmt.Errorf("arg %d: %s address %s does not name an account", i, key, string(args[i]))
		}
	}
	return "", fmt.Errorf("arg %d: unsupported address form %s", i, string(args[i]))
}

func optionalString(args []json.RawMessage, i int) string {
	s, err := ledger.ArgString(args, i)
	if err != nil {
		return ""
	}
	return s
}
