// Package calldata implements the canonical binary value encoding shared by
// contracts, the nondeterministic engine and the host.
//
// Every other internal package imports calldata; calldata imports nothing
// internal.
//
// # Wire Format
//
// Each value starts with a ULEB128 header. The low 3 bits of the header select
// a kind, the remaining bits carry either a small discriminant or a length:
//
//	kind 0 (special)  0x00 null, 0x08 false, 0x10 true, 0x18 address (+20 raw bytes)
//	kind 1 (pint)     header = n<<3 | 1            for n >= 0
//	kind 2 (nint)     header = (-n-1)<<3 | 2       for n < 0
//	kind 3 (bytes)    header = len<<3 | 3, then len raw bytes
//	kind 4 (str)      header = len<<3 | 4, then len UTF-8 bytes
//	kind 5 (array)    header = count<<3 | 5, then count values
//	kind 6 (map)      header = count<<3 | 6, then count entries of
//	                  ULEB128 key length, key bytes, value
//
// Map entries are emitted in strictly increasing raw byte order of their keys.
//
// # Canonicity
//
// The decoder accepts exactly the encodings the encoder produces:
//   - ULEB128 groups must be minimal (no trailing zero octet)
//   - map keys must be strictly increasing (duplicates rejected)
//   - strings and keys must be valid UTF-8
//   - no bytes may follow the top-level value
//
// so decode(encode(v)) == v and encode(decode(b)) == b hold for every value
// and every accepted buffer.
package calldata
