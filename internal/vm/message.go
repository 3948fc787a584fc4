package vm

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/roach88/ndvm/internal/calldata"
)

// DefaultDatetime is the block time used when none is supplied.
var DefaultDatetime = time.Date(2024, 11, 26, 6, 42, 42, 424242000, time.UTC)

// MessageData describes the transaction being executed.
type MessageData struct {
	Contract calldata.Address
	Sender   calldata.Address
	Origin   calldata.Address
	ChainID  string

	// Value is nil when the message carries no value.
	Value *uint256.Int

	IsInit   bool
	Datetime time.Time
}

// ToValue renders the message as a calldata map, the form programs and
// fixtures see.
func (m MessageData) ToValue() calldata.Value {
	out := calldata.Map{
		"contract_address": m.Contract,
		"sender_address":   m.Sender,
		"origin_address":   m.Origin,
		"chain_id":         calldata.Str(m.ChainID),
		"is_init":          calldata.Bool(m.IsInit),
		"datetime":         calldata.Str(m.datetime().Format(time.RFC3339Nano)),
		"value":            calldata.Null{},
	}
	if m.Value != nil {
		out["value"] = calldata.NewBigInt(m.Value.ToBig())
	}
	return out
}

func (m MessageData) datetime() time.Time {
	if m.Datetime.IsZero() {
		return DefaultDatetime
	}
	return m.Datetime.UTC()
}

// MessageFromValue parses the ToValue form. Missing fields keep zero values.
func MessageFromValue(v calldata.Value) (MessageData, error) {
	var m MessageData
	fields, ok := v.(calldata.Map)
	if !ok {
		return m, fmt.Errorf("message data must be a map, got %s", calldata.KindName(v))
	}

	addr := func(key string, dst *calldata.Address) error {
		raw, present := fields[key]
		if !present {
			return nil
		}
		a, ok := raw.(calldata.Address)
		if !ok {
			return fmt.Errorf("%s must be an address, got %s", key, calldata.KindName(raw))
		}
		*dst = a
		return nil
	}
	for key, dst := range map[string]*calldata.Address{
		"contract_address": &m.Contract,
		"sender_address":   &m.Sender,
		"origin_address":   &m.Origin,
	} {
		if err := addr(key, dst); err != nil {
			return m, err
		}
	}

	if s, ok := fields["chain_id"].(calldata.Str); ok {
		m.ChainID = string(s)
	}
	if b, ok := fields["is_init"].(calldata.Bool); ok {
		m.IsInit = bool(b)
	}
	if s, ok := fields["datetime"].(calldata.Str); ok {
		t, err := time.Parse(time.RFC3339Nano, string(s))
		if err != nil {
			return m, fmt.Errorf("datetime: %w", err)
		}
		m.Datetime = t
	}
	if n, ok := fields["value"].(calldata.Int); ok {
		if n.Sign() < 0 {
			return m, fmt.Errorf("value must not be negative")
		}
		val, overflow := uint256.FromBig(n.Big())
		if overflow {
			return m, fmt.Errorf("value does not fit in 256 bits")
		}
		m.Value = val
	}
	return m, nil
}
