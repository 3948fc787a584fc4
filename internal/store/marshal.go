package store

import (
	"fmt"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/wire"
)

// Kind classifies a journal entry.
type Kind string

const (
	KindLeaderResult Kind = "leader_result"
	KindVote         Kind = "vote"
	KindMessage      Kind = "message"
	KindDeploy       Kind = "deploy"
	KindEthSend      Kind = "eth_send"
	KindEvent        Kind = "event"
	KindOutcome      Kind = "outcome"
)

// Entry is one journal record.
type Entry struct {
	// Seq is assigned on append.
	Seq int64

	Tx     string
	Node   string
	Kind   Kind
	CallNo uint32

	// Result is set for leader results, votes and outcomes.
	Result result.Result

	// Detail describes emitted messages and events.
	Detail calldata.Value
}

// Nondet reports whether e is unique per (tx, node, kind, call_no).
func (e Entry) Nondet() bool {
	return e.Kind == KindLeaderResult || e.Kind == KindVote
}

func (e Entry) key() entryKey {
	return entryKey{tx: e.Tx, node: e.Node, kind: e.Kind, callNo: e.CallNo}
}

type entryKey struct {
	tx     string
	node   string
	kind   Kind
	callNo uint32
}

type slotKey struct {
	account calldata.Address
	slot    wire.SlotID
}

// marshalResult stores results in their wire form (code byte + payload).
func marshalResult(r result.Result) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	b, err := result.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return b, nil
}

func unmarshalResult(b []byte) (result.Result, error) {
	if b == nil {
		return nil, nil
	}
	r, err := result.Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return r, nil
}

// marshalDetail stores details as canonical calldata.
func marshalDetail(v calldata.Value) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := calldata.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("marshal detail: %w", err)
	}
	return b, nil
}

func unmarshalDetail(b []byte) (calldata.Value, error) {
	if b == nil {
		return nil, nil
	}
	v, err := calldata.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("unmarshal detail: %w", err)
	}
	return v, nil
}

// patch returns data with p written at offset, zero-extending as needed.
func patch(data []byte, offset uint32, p []byte) []byte {
	end := uint64(offset) + uint64(len(p))
	if uint64(len(data)) < end {
		grown := make([]byte, end)
		copy(grown, data)
		data = grown
	}
	copy(data[offset:], p)
	return data
}

// window returns length bytes of data starting at offset, zero padded.
func window(data []byte, offset, length uint32) []byte {
	out := make([]byte, length)
	if uint64(offset) < uint64(len(data)) {
		copy(out, data[offset:])
	}
	return out
}
