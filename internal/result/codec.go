package result

import (
	"fmt"
	"unicode/utf8"

	"github.com/roach88/ndvm/internal/calldata"
)

// EncodePayload returns the code and payload bytes for r.
// Return payloads are calldata; error payloads are UTF-8 messages.
func EncodePayload(r Result) (Code, []byte, error) {
	switch v := r.(type) {
	case Return:
		b, err := calldata.Encode(v.Value)
		if err != nil {
			return 0, nil, err
		}
		return CodeReturn, b, nil
	case Rollback, UserError, VMError:
		return r.Code(), []byte(Message(r)), nil
	default:
		return 0, nil, fmt.Errorf("cannot encode result %T", r)
	}
}

// DecodePayload rebuilds a Result from its code and payload.
// CodeAbsent is rejected: absence is not a result.
func DecodePayload(code Code, payload []byte) (Result, error) {
	switch code {
	case CodeReturn:
		v, err := calldata.Decode(payload)
		if err != nil {
			return nil, err
		}
		return Return{Value: v}, nil
	case CodeRollback, CodeUserError, CodeVMError:
		if !utf8.Valid(payload) {
			return nil, &calldata.DecodingError{Reason: fmt.Sprintf("%s message is not valid UTF-8", code)}
		}
		msg := string(payload)
		switch code {
		case CodeRollback:
			return Rollback{Message: msg}, nil
		case CodeUserError:
			return UserError{Message: msg}, nil
		default:
			return VMError{Message: msg}, nil
		}
	case CodeAbsent:
		return nil, fmt.Errorf("absent code carries no result")
	default:
		return nil, fmt.Errorf("unknown result code %d", uint8(code))
	}
}

// Marshal returns the single-buffer form: code byte followed by the payload.
// The journal and deferred handles store results in this form.
func Marshal(r Result) ([]byte, error) {
	code, payload, err := EncodePayload(r)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+len(payload))
	out = append(out, byte(code))
	return append(out, payload...), nil
}

// Unmarshal is the inverse of Marshal.
func Unmarshal(b []byte) (Result, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("empty result buffer")
	}
	return DecodePayload(Code(b[0]), b[1:])
}
