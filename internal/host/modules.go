package host

import (
	"context"
	"maps"
	"slices"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/result"
)

// Module answers MODULE_CALL requests for one module name. The node name
// lets fixtures give validators answers that differ from the leader.
type Module interface {
	Call(ctx context.Context, node string, payload calldata.Value) (result.Result, error)
}

// ModuleFunc adapts a function to Module.
type ModuleFunc func(ctx context.Context, node string, payload calldata.Value) (result.Result, error)

// Call implements Module.
func (f ModuleFunc) Call(ctx context.Context, node string, payload calldata.Value) (result.Result, error) {
	return f(ctx, node, payload)
}

// Answer is one canned module answer.
type Answer struct {
	// Match lists payload fields and the formatted value they must have.
	// An empty Match matches every payload.
	Match map[string]string

	// Node restricts the answer to one node. Empty means any node.
	Node string

	Result result.Result
}

func (a Answer) matches(node string, payload calldata.Value) bool {
	if a.Node != "" && a.Node != node {
		return false
	}
	if len(a.Match) == 0 {
		return true
	}
	m, ok := payload.(calldata.Map)
	if !ok {
		return false
	}
	for _, key := range slices.Sorted(maps.Keys(a.Match)) {
		v, present := m[key]
		if !present || calldata.Format(v) != a.Match[key] {
			return false
		}
	}
	return true
}

// Canned answers from a fixed list. The first matching answer wins;
// answers restricted to a node are preferred over unrestricted ones.
type Canned []Answer

// Call implements Module.
func (c Canned) Call(_ context.Context, node string, payload calldata.Value) (result.Result, error) {
	for _, specific := range []bool{true, false} {
		for _, a := range c {
			if (a.Node != "") == specific && a.matches(node, payload) {
				return a.Result, nil
			}
		}
	}
	return result.VMError{Message: "no answer for " + calldata.Format(payload)}, nil
}
