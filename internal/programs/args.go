package programs

import (
	"encoding/binary"

	"github.com/holiman/uint256"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/wire"
)

// args wraps a program argument map. Missing or mistyped arguments are
// user errors: the caller supplied them.
type args struct {
	m calldata.Map
}

func mapArgs(v calldata.Value) (args, error) {
	switch m := v.(type) {
	case calldata.Map:
		return args{m: m}, nil
	case calldata.Null:
		return args{m: calldata.Map{}}, nil
	default:
		return args{}, result.UserErrorf("arguments must be a map, got %s", calldata.KindName(v))
	}
}

func (a args) value(key string) calldata.Value {
	if v, ok := a.m[key]; ok {
		return v
	}
	return calldata.Null{}
}

func (a args) str(key string) (string, error) {
	s, ok := a.m[key].(calldata.Str)
	if !ok {
		return "", result.UserErrorf("argument %q must be a string", key)
	}
	return string(s), nil
}

func (a args) strings(key string) ([]string, error) {
	arr, ok := a.m[key].(calldata.Array)
	if !ok {
		return nil, result.UserErrorf("argument %q must be an array of strings", key)
	}
	out := make([]string, len(arr))
	for i, v := range arr {
		s, ok := v.(calldata.Str)
		if !ok {
			return nil, result.UserErrorf("argument %q must be an array of strings", key)
		}
		out[i] = string(s)
	}
	return out, nil
}

func (a args) strOr(key, def string) (string, error) {
	if _, ok := a.m[key]; !ok {
		return def, nil
	}
	return a.str(key)
}

func (a args) integer(key string) (calldata.Int, error) {
	n, ok := a.m[key].(calldata.Int)
	if !ok {
		return calldata.Int{}, result.UserErrorf("argument %q must be an integer", key)
	}
	return n, nil
}

func (a args) uint32(key string, def uint32) (uint32, error) {
	if _, ok := a.m[key]; !ok {
		return def, nil
	}
	n, err := a.integer(key)
	if err != nil {
		return 0, err
	}
	v, ok := n.Int64()
	if !ok || v < 0 || v > int64(^uint32(0)) {
		return 0, result.UserErrorf("argument %q out of range: %s", key, n)
	}
	return uint32(v), nil
}

func (a args) uint64(key string, def uint64) (uint64, error) {
	if _, ok := a.m[key]; !ok {
		return def, nil
	}
	n, err := a.integer(key)
	if err != nil {
		return 0, err
	}
	if n.Sign() < 0 || !n.Big().IsUint64() {
		return 0, result.UserErrorf("argument %q out of range: %s", key, n)
	}
	return n.Big().Uint64(), nil
}

// amount reads an optional 256-bit value. A missing key is nil.
func (a args) amount(key string) (*uint256.Int, error) {
	if _, ok := a.m[key]; !ok {
		return nil, nil
	}
	n, err := a.integer(key)
	if err != nil {
		return nil, err
	}
	if n.Sign() < 0 {
		return nil, result.UserErrorf("argument %q can't be negative", key)
	}
	v, overflow := uint256.FromBig(n.Big())
	if overflow {
		return nil, result.UserErrorf("argument %q exceeds 256 bits", key)
	}
	return v, nil
}

func (a args) address(key string) (calldata.Address, error) {
	addr, ok := a.m[key].(calldata.Address)
	if !ok {
		return calldata.Address{}, result.UserErrorf("argument %q must be an address", key)
	}
	return addr, nil
}

func (a args) bytes(key string) ([]byte, error) {
	b, ok := a.m[key].(calldata.Bytes)
	if !ok {
		return nil, result.UserErrorf("argument %q must be bytes", key)
	}
	return b, nil
}

func (a args) boolean(key string) bool {
	b, _ := a.m[key].(calldata.Bool)
	return bool(b)
}

// slot accepts a 32-byte id or a small integer placed little-endian in the
// first four bytes.
func (a args) slot(key string) (wire.SlotID, error) {
	var id wire.SlotID
	switch v := a.m[key].(type) {
	case calldata.Bytes:
		if len(v) != wire.SlotSize {
			return id, result.UserErrorf("argument %q must be %d bytes, got %d", key, wire.SlotSize, len(v))
		}
		copy(id[:], v)
		return id, nil
	case calldata.Int:
		n, err := a.uint32(key, 0)
		if err != nil {
			return id, err
		}
		binary.LittleEndian.PutUint32(id[:], n)
		return id, nil
	default:
		return id, result.UserErrorf("argument %q must be a slot id", key)
	}
}

// outcome renders a result as a calldata map for programs that return
// another execution's result instead of raising it.
func outcome(r result.Result) calldata.Value {
	out := calldata.Map{"code": calldata.Str(r.Code().String())}
	if ret, ok := r.(result.Return); ok {
		out["value"] = ret.Value
	} else {
		out["message"] = calldata.Str(result.Message(r))
	}
	return out
}

