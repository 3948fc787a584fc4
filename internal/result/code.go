package result

import "fmt"

// Code tags a result payload on the wire.
type Code uint8

const (
	// CodeReturn carries a calldata-encoded value.
	CodeReturn Code = 0

	// CodeRollback carries a UTF-8 message.
	CodeRollback Code = 1

	// CodeAbsent has no payload. Only GET_LEADER_NONDET_RESULT replies use it.
	CodeAbsent Code = 2

	// CodeVMError carries a UTF-8 message.
	CodeVMError Code = 3

	// CodeUserError carries a UTF-8 message.
	CodeUserError Code = 4
)

var codeNames = map[Code]string{
	CodeReturn:    "return",
	CodeRollback:  "rollback",
	CodeAbsent:    "absent",
	CodeVMError:   "vm_error",
	CodeUserError: "user_error",
}

// String returns the lowercase name of the code.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", uint8(c))
}

// Valid reports whether c is one of the defined codes.
func (c Code) Valid() bool {
	_, ok := codeNames[c]
	return ok
}

// ParseCode maps a name produced by String back to its Code.
func ParseCode(name string) (Code, error) {
	for c, n := range codeNames {
		if n == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown result code %q", name)
}
