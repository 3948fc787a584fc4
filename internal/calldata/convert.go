package calldata

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"
)

// FromGo converts a plain Go value into a Value.
//
// Accepted inputs: nil (Null), bool, string, all integer kinds, *big.Int,
// []byte, Address, json.Number, []any, map[string]any and any Value.
// Floats are accepted only when integral, since YAML and JSON decoders
// produce float64 for large literals; fractional numbers are rejected.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return Str(val), nil
	case int:
		return NewInt(int64(val)), nil
	case int8:
		return NewInt(int64(val)), nil
	case int16:
		return NewInt(int64(val)), nil
	case int32:
		return NewInt(int64(val)), nil
	case int64:
		return NewInt(val), nil
	case uint:
		return NewUint(uint64(val)), nil
	case uint8:
		return NewUint(uint64(val)), nil
	case uint16:
		return NewUint(uint64(val)), nil
	case uint32:
		return NewUint(uint64(val)), nil
	case uint64:
		return NewUint(val), nil
	case *big.Int:
		return NewBigInt(val), nil
	case []byte:
		out := make(Bytes, len(val))
		copy(out, val)
		return out, nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return nil, fmt.Errorf("floats are forbidden in calldata: %s", s)
		}
		return ParseInt(s)
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) || math.IsNaN(val) {
			return nil, fmt.Errorf("floats are forbidden in calldata: %v", val)
		}
		n, _ := big.NewFloat(val).Int(nil)
		return NewBigInt(n), nil
	case float32:
		return FromGo(float64(val))
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			cv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = cv
		}
		return arr, nil
	case []Value:
		return Array(val), nil
	case map[string]any:
		m := make(Map, len(val))
		for k, elem := range val {
			cv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			m[k] = cv
		}
		return m, nil
	case map[string]Value:
		return Map(val), nil
	default:
		return nil, fmt.Errorf("unsupported type for calldata: %T", v)
	}
}

// MustFromGo is FromGo for literals in tests and fixtures. Panics on error.
func MustFromGo(v any) Value {
	cv, err := FromGo(v)
	if err != nil {
		panic(err)
	}
	return cv
}
