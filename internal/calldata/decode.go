package calldata

import (
	"fmt"
	"math/big"
	"unicode/utf8"
)

// Decode parses a canonical calldata buffer.
//
// Fails with *DecodingError on malformed ULEB128, truncated input, invalid
// UTF-8, unordered or duplicate map keys, unknown kinds and trailing bytes.
func Decode(data []byte) (Value, error) {
	p := parser{buf: data}
	v, err := p.value(0)
	if err != nil {
		return nil, err
	}
	if p.off != len(p.buf) {
		return nil, p.fail("input is partially unparsed (%d trailing bytes)", len(p.buf)-p.off)
	}
	return v, nil
}

type parser struct {
	buf []byte
	off int
}

func (p *parser) fail(format string, args ...any) error {
	return &DecodingError{Offset: p.off, Reason: fmt.Sprintf(format, args...)}
}

func (p *parser) remaining() int {
	return len(p.buf) - p.off
}

// uleb reads one minimal ULEB128 number.
func (p *parser) uleb() (*big.Int, error) {
	start := p.off
	for {
		if p.off >= len(p.buf) {
			p.off = start
			return nil, p.fail("unterminated uleb")
		}
		b := p.buf[p.off]
		p.off++
		if b&0x80 == 0 {
			if b == 0 && p.off-start > 1 {
				return nil, p.fail("most significant uleb octet can not be zero")
			}
			break
		}
	}

	group := p.buf[start:p.off]
	if len(group) <= 9 {
		var n uint64
		for i, b := range group {
			n |= uint64(b&0x7f) << (7 * uint(i))
		}
		return new(big.Int).SetUint64(n), nil
	}

	res := new(big.Int)
	for i := len(group) - 1; i >= 0; i-- {
		res.Lsh(res, 7)
		res.Or(res, big.NewInt(int64(group[i]&0x7f)))
	}
	return res, nil
}

// size converts a container length, rejecting lengths over 32 bits.
func (p *parser) size(n *big.Int) (int, error) {
	if n.BitLen() > 32 {
		return 0, p.fail("container size is too large (%d bits > 32)", n.BitLen())
	}
	return int(n.Uint64()), nil
}

func (p *parser) slice(n int) ([]byte, error) {
	if p.remaining() < n {
		return nil, p.fail("truncated input: need %d bytes, have %d", n, p.remaining())
	}
	out := p.buf[p.off : p.off+n]
	p.off += n
	return out, nil
}

func (p *parser) value(depth int) (Value, error) {
	if depth > MaxDepth {
		return nil, p.fail("nesting exceeds %d", MaxDepth)
	}

	headerAt := p.off
	header, err := p.uleb()
	if err != nil {
		return nil, err
	}
	// The first octet carries the lowest 7 bits, so it holds the kind.
	typ := p.buf[headerAt] & (1<<bitsInType - 1)
	payload := new(big.Int).Rsh(header, bitsInType)

	switch typ {
	case typeSpecial:
		if payload.BitLen() > 8-bitsInType {
			p.off = headerAt
			return nil, p.fail("invalid special value %s", header.String())
		}
		switch byte(header.Uint64()) {
		case specialNull:
			return Null{}, nil
		case specialFalse:
			return Bool(false), nil
		case specialTrue:
			return Bool(true), nil
		case specialAddr:
			raw, err := p.slice(AddressSize)
			if err != nil {
				return nil, err
			}
			var a Address
			copy(a[:], raw)
			return a, nil
		default:
			p.off = headerAt
			return nil, p.fail("invalid special value %s", header.String())
		}

	case typePInt:
		return Int{n: payload}, nil

	case typeNInt:
		payload.Add(payload, big.NewInt(1))
		payload.Neg(payload)
		return Int{n: payload}, nil

	case typeBytes:
		n, err := p.size(payload)
		if err != nil {
			return nil, err
		}
		raw, err := p.slice(n)
		if err != nil {
			return nil, err
		}
		out := make(Bytes, n)
		copy(out, raw)
		return out, nil

	case typeStr:
		n, err := p.size(payload)
		if err != nil {
			return nil, err
		}
		raw, err := p.slice(n)
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(raw) {
			p.off -= n
			return nil, p.fail("string is not valid UTF-8")
		}
		return Str(raw), nil

	case typeArr:
		n, err := p.size(payload)
		if err != nil {
			return nil, err
		}
		// Every element takes at least one byte.
		if n > p.remaining() {
			return nil, p.fail("truncated input: array of %d elements, %d bytes left", n, p.remaining())
		}
		arr := make(Array, 0, n)
		for i := 0; i < n; i++ {
			elem, err := p.value(depth + 1)
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil

	case typeMap:
		n, err := p.size(payload)
		if err != nil {
			return nil, err
		}
		// Every entry takes at least two bytes (key length + value header).
		if n > p.remaining()/2 {
			return nil, p.fail("truncated input: map of %d entries, %d bytes left", n, p.remaining())
		}
		m := make(Map, n)
		prev := ""
		for i := 0; i < n; i++ {
			keyAt := p.off
			klen, err := p.uleb()
			if err != nil {
				return nil, err
			}
			kn, err := p.size(klen)
			if err != nil {
				return nil, err
			}
			raw, err := p.slice(kn)
			if err != nil {
				return nil, err
			}
			if !utf8.Valid(raw) {
				p.off = keyAt
				return nil, p.fail("map key is not valid UTF-8")
			}
			key := string(raw)
			if i > 0 && key <= prev {
				p.off = keyAt
				return nil, p.fail("invalid map ordering: %q after %q", key, prev)
			}
			prev = key

			val, err := p.value(depth + 1)
			if err != nil {
				return nil, err
			}
			m[key] = val
		}
		return m, nil

	default:
		p.off = headerAt
		return nil, p.fail("invalid type %d", typ)
	}
}
