package calldata

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// JSON view of calldata values.
//
// The view is a display and fixture format, not a second wire format:
//   - Null, Bool, Str, Array, Map map to their JSON counterparts
//   - Int is a JSON number of arbitrary precision
//   - Bytes is {"$bytes": "<hex>"}
//   - Address is {"$address": "0x<hex>"}
//
// MarshalJSON output is canonical: keys in calldata order (raw bytes),
// no insignificant whitespace, no HTML escaping, strings NFC normalised.
// Because of the NFC step, ParseJSON(MarshalJSON(v)) equals v only for
// NFC-normalised strings; the binary codec never normalises.

const (
	jsonBytesKey   = "$bytes"
	jsonAddressKey = "$address"
)

// MarshalJSON renders v in the canonical JSON view.
func MarshalJSON(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("nil value has no JSON form")
	case Null:
		buf.WriteString("null")
	case Bool:
		buf.WriteString(strconv.FormatBool(bool(val)))
	case Int:
		buf.WriteString(val.String())
	case Str:
		writeJSONString(buf, string(val))
	case Bytes:
		buf.WriteString(`{"` + jsonBytesKey + `":"`)
		buf.WriteString(hex.EncodeToString(val))
		buf.WriteString(`"}`)
	case Address:
		buf.WriteString(`{"` + jsonAddressKey + `":"`)
		buf.WriteString(val.String())
		buf.WriteString(`"}`)
	case Array:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Map:
		buf.WriteByte('{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeJSONString(buf, k)
			buf.WriteByte(':')
			if err := writeJSON(buf, val[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unknown calldata type: %T", v)
	}
	return nil
}

// writeJSONString escapes only quote, backslash and control characters
// (RFC 8785). Invalid UTF-8 is replaced with U+FFFD.
func writeJSONString(buf *bytes.Buffer, s string) {
	s = norm.NFC.String(s)
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch {
		case r == '"':
			buf.WriteString(`\"`)
		case r == '\\':
			buf.WriteString(`\\`)
		case r == '\b':
			buf.WriteString(`\b`)
		case r == '\f':
			buf.WriteString(`\f`)
		case r == '\n':
			buf.WriteString(`\n`)
		case r == '\r':
			buf.WriteString(`\r`)
		case r == '\t':
			buf.WriteString(`\t`)
		case r < 0x20:
			fmt.Fprintf(buf, `\u%04x`, r)
		default:
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
}

// ParseJSON reads the JSON view back into a Value.
// Numbers must be integers; floats are rejected.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("parse JSON: trailing data after value")
	}
	return fromJSON(raw)
}

// FromView converts an already decoded JSON or YAML document in the JSON
// view into a Value. Single-key {"$bytes"} and {"$address"} objects are
// decoded as bytes and addresses.
func FromView(raw any) (Value, error) {
	return fromJSON(raw)
}

func fromJSON(raw any) (Value, error) {
	switch val := raw.(type) {
	case map[string]any:
		if len(val) == 1 {
			if h, ok := val[jsonBytesKey].(string); ok {
				b, err := hex.DecodeString(h)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", jsonBytesKey, err)
				}
				return Bytes(b), nil
			}
			if a, ok := val[jsonAddressKey].(string); ok {
				return ParseAddress(a)
			}
		}
		m := make(Map, len(val))
		for k, elem := range val {
			cv, err := fromJSON(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			m[k] = cv
		}
		return m, nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			cv, err := fromJSON(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = cv
		}
		return arr, nil
	default:
		return FromGo(val)
	}
}

// Format renders v for human and prompt consumption. A top-level string is
// returned verbatim; everything else uses the JSON view.
func Format(v Value) string {
	if s, ok := v.(Str); ok {
		return string(s)
	}
	b, err := MarshalJSON(v)
	if err != nil {
		return fmt.Sprintf("<%s>", KindName(v))
	}
	return string(b)
}
