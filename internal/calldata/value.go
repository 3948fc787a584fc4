package calldata

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// AddressSize is the fixed size of an account address in bytes.
const AddressSize = 20

// Value is a sealed interface over the calldata value universe.
// Only Null, Bool, Int, Bytes, Str, Address, Array and Map implement it.
type Value interface {
	calldataValue() // Sealed
}

// Null is the calldata null value.
type Null struct{}

func (Null) calldataValue() {}

// Bool is a calldata boolean.
type Bool bool

func (Bool) calldataValue() {}

// Int is an arbitrary-precision signed integer.
//
// Int is immutable: constructors copy their argument and Big returns a copy.
// The zero Int is 0.
type Int struct {
	n *big.Int
}

func (Int) calldataValue() {}

// Bytes is an opaque byte string.
type Bytes []byte

func (Bytes) calldataValue() {}

// Str is a UTF-8 string.
type Str string

func (Str) calldataValue() {}

// Address is a fixed 20-byte account address.
type Address [AddressSize]byte

func (Address) calldataValue() {}

// Array is an ordered sequence of values.
type Array []Value

func (Array) calldataValue() {}

// Map maps UTF-8 keys to values.
// Use SortedKeys for canonical iteration order.
type Map map[string]Value

func (Map) calldataValue() {}

// NewInt creates an Int from an int64.
func NewInt(n int64) Int {
	return Int{n: big.NewInt(n)}
}

// NewUint creates an Int from a uint64.
func NewUint(n uint64) Int {
	return Int{n: new(big.Int).SetUint64(n)}
}

// NewBigInt creates an Int holding a copy of n. A nil n is 0.
func NewBigInt(n *big.Int) Int {
	if n == nil {
		return Int{}
	}
	return Int{n: new(big.Int).Set(n)}
}

// ParseInt parses a base-10 integer literal of any size.
func ParseInt(s string) (Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Int{}, fmt.Errorf("invalid integer literal %q", s)
	}
	return Int{n: n}, nil
}

// Big returns a copy of the integer as a *big.Int.
func (i Int) Big() *big.Int {
	if i.n == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(i.n)
}

// Int64 returns the integer as an int64 and whether it fits.
func (i Int) Int64() (int64, bool) {
	if i.n == nil {
		return 0, true
	}
	if !i.n.IsInt64() {
		return 0, false
	}
	return i.n.Int64(), true
}

// Sign returns -1, 0 or +1.
func (i Int) Sign() int {
	if i.n == nil {
		return 0
	}
	return i.n.Sign()
}

// Cmp compares two integers.
func (i Int) Cmp(o Int) int {
	return i.Big().Cmp(o.Big())
}

// String returns the base-10 representation.
func (i Int) String() string {
	if i.n == nil {
		return "0"
	}
	return i.n.String()
}

// ParseAddress parses a 40 hex digit address with optional 0x prefix.
func ParseAddress(s string) (Address, error) {
	var a Address
	raw := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(raw) != AddressSize*2 {
		return a, fmt.Errorf("address %q: expected %d hex digits, got %d", s, AddressSize*2, len(raw))
	}
	if _, err := hex.Decode(a[:], []byte(raw)); err != nil {
		return a, fmt.Errorf("address %q: %w", s, err)
	}
	return a, nil
}

// AddressFromBytes copies b into an Address. b must be exactly AddressSize long.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressSize {
		return a, fmt.Errorf("address must be %d bytes, got %d", AddressSize, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// String returns the 0x-prefixed lowercase hex form.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// SortedKeys returns the keys in canonical order: ascending raw UTF-8 bytes.
// Go string comparison is bytewise, which is exactly the wire ordering.
func (m Map) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether two values are structurally equal.
//
// Bytes(nil) equals Bytes{}; Array(nil) equals Array{}; Map(nil) equals Map{}.
// A nil Value only equals another nil Value.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case Null:
		_, ok := b.(Null)
		return ok
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av.Cmp(bv) == 0
	case Bytes:
		bv, ok := b.(Bytes)
		return ok && bytes.Equal(av, bv)
	case Str:
		bv, ok := b.(Str)
		return ok && av == bv
	case Address:
		bv, ok := b.(Address)
		return ok && av == bv
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Map:
		bv, ok := b.(Map)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, present := bv[k]
			if !present || !Equal(v, other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// KindName returns a short name of the value's kind for diagnostics.
func KindName(v Value) string {
	switch v.(type) {
	case nil:
		return "nil"
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Bytes:
		return "bytes"
	case Str:
		return "str"
	case Address:
		return "address"
	case Array:
		return "array"
	case Map:
		return "map"
	default:
		return fmt.Sprintf("%T", v)
	}
}
