package harness

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/host"
	"github.com/roach88/ndvm/internal/wire"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, describe(event))
		}
	}
	return buf.String()
}

func describe(e TraceEvent) string {
	s := fmt.Sprintf("%s %s call %d", e.Node, e.Kind, e.CallNo)
	if e.Result != nil {
		s += " " + calldata.Format(resultValue(e.Result))
	}
	if e.Detail != nil {
		s += " " + calldata.Format(e.Detail)
	}
	return s
}

// matches reports whether event satisfies the kind, node and call filters
// of assertion.
func matches(event TraceEvent, assertion Assertion) bool {
	if string(event.Kind) != assertion.Kind {
		return false
	}
	if assertion.Node != "" && event.Node != assertion.Node {
		return false
	}
	if assertion.CallNo != nil && event.CallNo != *assertion.CallNo {
		return false
	}
	return true
}

// assertTraceContains checks that some entry matches the filters, the
// expected result and the expected detail (subset match for maps).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	var detail calldata.Value
	if assertion.Detail != nil {
		v, err := calldata.FromView(assertion.Detail)
		if err != nil {
			return fmt.Errorf("trace_contains detail: %w", err)
		}
		detail = v
	}

	for _, event := range trace {
		if !matches(event, assertion) {
			continue
		}
		if assertion.Expect != nil && matchExpect(*assertion.Expect, event.Result) != nil {
			continue
		}
		if detail != nil && !subset(detail, event.Detail) {
			continue
		}
		return nil
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describeFilter(assertion),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

func describeFilter(a Assertion) string {
	parts := []string{a.Kind}
	if a.Node != "" {
		parts = append(parts, "node "+a.Node)
	}
	if a.CallNo != nil {
		parts = append(parts, fmt.Sprintf("call %d", *a.CallNo))
	}
	if a.Expect != nil {
		parts = append(parts, "result "+a.Expect.Code)
	}
	return strings.Join(parts, ", ")
}

// subset reports whether want is contained in got: maps match on the keys
// of want, every other value must be equal.
func subset(want, got calldata.Value) bool {
	wm, ok := want.(calldata.Map)
	if !ok {
		return calldata.Equal(want, got)
	}
	gm, ok := got.(calldata.Map)
	if !ok {
		return false
	}
	for k, wv := range wm {
		gv, exists := gm[k]
		if !exists || !subset(wv, gv) {
			return false
		}
	}
	return true
}

func splitOrderItem(item string) (node, kind string) {
	if i := strings.LastIndexByte(item, '/'); i >= 0 {
		return item[:i], item[i+1:]
	}
	return "", item
}

// assertTraceOrder checks that the items occur in the trace in order.
// Entries don't need to be consecutive.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	pos := 0
	for _, item := range assertion.Kinds {
		node, kind := splitOrderItem(item)
		found := false
		for pos < len(trace) {
			event := trace[pos]
			pos++
			if string(event.Kind) == kind && (node == "" || event.Node == node) {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("entries in order: %v", assertion.Kinds),
				Actual:   fmt.Sprintf("no %s after the preceding items", item),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks the exact number of matching entries.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if matches(event, assertion) {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, describeFilter(assertion)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState reads len(data) bytes of a slot from a node's storage
// and compares them with the expected data.
func assertFinalState(actx *AssertionContext, assertion Assertion) error {
	name := assertion.Node
	if name == "" {
		name = LeaderNode
	}
	st, ok := actx.Storage[name]
	if !ok {
		return fmt.Errorf("final_state: unknown node %q", name)
	}

	account := actx.Contract
	if assertion.Account != "" {
		a, err := calldata.ParseAddress(assertion.Account)
		if err != nil {
			return fmt.Errorf("final_state account: %w", err)
		}
		account = a
	}
	slot, err := parseSlot(assertion.Slot)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}
	want, err := parseHex(assertion.Data)
	if err != nil {
		return fmt.Errorf("final_state data: %w", err)
	}

	got, err := st.ReadSlot(actx.Ctx, account, slot, assertion.Offset, uint32(len(want)))
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("read slot %x on %s", slot, name),
			Actual:   fmt.Sprintf("read error: %v", err),
		}
	}
	if !bytes.Equal(got, want) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("slot %x at %d on %s = %x", slot, assertion.Offset, name, want),
			Actual:   fmt.Sprintf("%x", got),
		}
	}
	return nil
}

// parseSlot accepts an integer, placed little-endian in the first four
// bytes, or a 32-byte hex id.
func parseSlot(raw any) (wire.SlotID, error) {
	var id wire.SlotID
	v, err := viewValue(raw)
	if err != nil {
		return id, fmt.Errorf("slot: %w", err)
	}
	switch s := v.(type) {
	case calldata.Int:
		n, ok := s.Int64()
		if !ok || n < 0 || n > int64(^uint32(0)) {
			return id, fmt.Errorf("slot %s out of range", s)
		}
		binary.LittleEndian.PutUint32(id[:], uint32(n))
		return id, nil
	case calldata.Str:
		b, err := parseHex(string(s))
		if err != nil {
			return id, fmt.Errorf("slot: %w", err)
		}
		if len(b) != wire.SlotSize {
			return id, fmt.Errorf("slot must be %d bytes, got %d", wire.SlotSize, len(b))
		}
		copy(id[:], b)
		return id, nil
	default:
		return id, fmt.Errorf("slot must be an integer or hex string, got %s", calldata.KindName(v))
	}
}

func parseHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

// AssertionContext provides what final_state assertions read.
type AssertionContext struct {
	Ctx      context.Context
	Contract calldata.Address
	Storage  map[string]host.Storage
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			if actx == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires storage context", i)
			} else {
				err = assertFinalState(actx, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
