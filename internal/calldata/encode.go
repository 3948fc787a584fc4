package calldata

import (
	"fmt"
	"math/big"
	"unicode/utf8"
)

const bitsInType = 3

// Kind selectors stored in the low 3 bits of every header.
const (
	typeSpecial byte = 0
	typePInt    byte = 1
	typeNInt    byte = 2
	typeBytes   byte = 3
	typeStr     byte = 4
	typeArr     byte = 5
	typeMap     byte = 6
)

// Special headers. Each fits in one octet.
const (
	specialNull  byte = (0 << bitsInType) | typeSpecial
	specialFalse byte = (1 << bitsInType) | typeSpecial
	specialTrue  byte = (2 << bitsInType) | typeSpecial
	specialAddr  byte = (3 << bitsInType) | typeSpecial
)

// MaxDepth bounds container nesting for both directions of the codec.
const MaxDepth = 1024

// Encode returns the canonical encoding of v.
func Encode(v Value) ([]byte, error) {
	return AppendEncode(nil, v)
}

// AppendEncode appends the canonical encoding of v to dst.
func AppendEncode(dst []byte, v Value) ([]byte, error) {
	return appendValue(dst, v, 0, "$")
}

// MustEncode is Encode for values known to be encodable (constants, tests).
// Panics on error.
func MustEncode(v Value) []byte {
	b, err := Encode(v)
	if err != nil {
		panic(err)
	}
	return b
}

func appendValue(dst []byte, v Value, depth int, path string) ([]byte, error) {
	if depth > MaxDepth {
		return nil, &EncodingError{Path: path, Reason: fmt.Sprintf("nesting exceeds %d", MaxDepth)}
	}

	switch val := v.(type) {
	case nil:
		return nil, &EncodingError{Path: path, Reason: "nil value"}
	case Null:
		return append(dst, specialNull), nil
	case Bool:
		if val {
			return append(dst, specialTrue), nil
		}
		return append(dst, specialFalse), nil
	case Address:
		dst = append(dst, specialAddr)
		return append(dst, val[:]...), nil
	case Int:
		return appendInt(dst, val), nil
	case Bytes:
		dst = appendHeader(dst, uint64(len(val)), typeBytes)
		return append(dst, val...), nil
	case Str:
		if !utf8.ValidString(string(val)) {
			return nil, &EncodingError{Path: path, Reason: "string is not valid UTF-8"}
		}
		dst = appendHeader(dst, uint64(len(val)), typeStr)
		return append(dst, val...), nil
	case Array:
		dst = appendHeader(dst, uint64(len(val)), typeArr)
		var err error
		for i, elem := range val {
			dst, err = appendValue(dst, elem, depth+1, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
		}
		return dst, nil
	case Map:
		dst = appendHeader(dst, uint64(len(val)), typeMap)
		var err error
		for _, k := range val.SortedKeys() {
			if !utf8.ValidString(k) {
				return nil, &EncodingError{Path: path, Reason: fmt.Sprintf("key %q is not valid UTF-8", k)}
			}
			dst = appendUleb(dst, uint64(len(k)))
			dst = append(dst, k...)
			dst, err = appendValue(dst, val[k], depth+1, fmt.Sprintf("%s.%s", path, k))
			if err != nil {
				return nil, err
			}
		}
		return dst, nil
	default:
		return nil, &EncodingError{Path: path, Reason: fmt.Sprintf("unsupported value type %T", v)}
	}
}

// appendInt writes n as pint or nint. Negative n is stored as -n-1.
func appendInt(dst []byte, n Int) []byte {
	typ := typePInt
	mag := n.Big()
	if mag.Sign() < 0 {
		typ = typeNInt
		mag.Neg(mag)
		mag.Sub(mag, big.NewInt(1))
	}

	if mag.BitLen() <= 64-bitsInType {
		return appendHeader(dst, mag.Uint64(), typ)
	}

	mag.Lsh(mag, bitsInType)
	mag.Or(mag, big.NewInt(int64(typ)))
	return appendUlebBig(dst, mag)
}

func appendHeader(dst []byte, n uint64, typ byte) []byte {
	if n < 1<<(64-bitsInType) {
		return appendUleb(dst, n<<bitsInType|uint64(typ))
	}
	h := new(big.Int).SetUint64(n)
	h.Lsh(h, bitsInType)
	h.Or(h, big.NewInt(int64(typ)))
	return appendUlebBig(dst, h)
}

func appendUleb(dst []byte, n uint64) []byte {
	for n >= 0x80 {
		dst = append(dst, byte(n)|0x80)
		n >>= 7
	}
	return append(dst, byte(n))
}

func appendUlebBig(dst []byte, n *big.Int) []byte {
	if n.IsUint64() {
		return appendUleb(dst, n.Uint64())
	}
	x := new(big.Int).Set(n)
	low := new(big.Int)
	mask := big.NewInt(0x7f)
	for {
		cur := byte(low.And(x, mask).Uint64())
		x.Rsh(x, 7)
		if x.Sign() == 0 {
			return append(dst, cur)
		}
		dst = append(dst, cur|0x80)
	}
}
