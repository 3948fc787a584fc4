package harness

import (
	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/store"
)

// TraceEvent is one journal entry of the scenario transaction.
type TraceEvent struct {
	Node   string
	Kind   store.Kind
	CallNo uint32

	// Result is set for leader results, votes and outcomes.
	Result result.Result

	// Detail is set for messages, deploys, sends and events.
	Detail calldata.Value
}

// ToValue renders e as the calldata map used in snapshots.
func (e TraceEvent) ToValue() calldata.Map {
	out := calldata.Map{
		"node":    calldata.Str(e.Node),
		"kind":    calldata.Str(string(e.Kind)),
		"call_no": calldata.NewUint(uint64(e.CallNo)),
	}
	if e.Result != nil {
		out["result"] = resultValue(e.Result)
	}
	if e.Detail != nil {
		out["detail"] = e.Detail
	}
	return out
}

// resultValue renders r as {code, value} or {code, message}.
func resultValue(r result.Result) calldata.Map {
	out := calldata.Map{"code": calldata.Str(r.Code().String())}
	if ret, ok := r.(result.Return); ok {
		out["value"] = ret.Value
	} else {
		out["message"] = calldata.Str(result.Message(r))
	}
	return out
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool

	// Trace lists the leader's entries, then each validator's in scenario
	// order.
	Trace []TraceEvent

	// Outcomes maps node names to the result their execution reported.
	Outcomes map[string]result.Result

	// Errors holds one message per failed expectation or assertion.
	Errors []string
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Outcomes: make(map[string]result.Result),
		Errors:   []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// ToValue renders r for machine-readable output.
func (r *Result) ToValue() calldata.Map {
	trace := make(calldata.Array, len(r.Trace))
	for i, e := range r.Trace {
		trace[i] = e.ToValue()
	}
	outcomes := make(calldata.Map, len(r.Outcomes))
	for node, res := range r.Outcomes {
		outcomes[node] = resultValue(res)
	}
	errs := make(calldata.Array, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = calldata.Str(e)
	}
	return calldata.Map{
		"pass":     calldata.Bool(r.Pass),
		"trace":    trace,
		"outcomes": outcomes,
		"errors":   errs,
	}
}
