package vm

import (
	"fmt"
	"slices"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/result"
)

// OpKind tags an Operation.
type OpKind string

const (
	OpExecPrompt    OpKind = "exec_prompt"
	OpWebRequest    OpKind = "web_request"
	OpSandboxedEval OpKind = "sandboxed_eval"
	OpEqualityCheck OpKind = "equality_check"
)

// Host module names used by operations.
const (
	ModuleLLMPrompt   = "llm.prompt"
	ModuleLLMTemplate = "llm.template"
	ModuleWebRender   = "web.render"
)

// Operation is one member of the closed set of serialisable work items.
// Args is always a map; its required keys depend on Kind.
type Operation struct {
	Kind OpKind
	Args calldata.Map
}

// ExecPrompt prompts the LLM module. Format is "text" or "json".
func ExecPrompt(prompt, format string) Operation {
	if format == "" {
		format = "text"
	}
	return Operation{Kind: OpExecPrompt, Args: calldata.Map{
		"prompt":          calldata.Str(prompt),
		"response_format": calldata.Str(format),
	}}
}

// WebRequest renders url with the web module. Mode is "text", "html" or
// "status".
func WebRequest(url, mode string) Operation {
	if mode == "" {
		mode = "text"
	}
	return Operation{Kind: OpWebRequest, Args: calldata.Map{
		"url":  calldata.Str(url),
		"mode": calldata.Str(mode),
	}}
}

// SandboxedEval runs the registered program with args.
func SandboxedEval(program string, args calldata.Value) Operation {
	if args == nil {
		args = calldata.Null{}
	}
	return Operation{Kind: OpSandboxedEval, Args: calldata.Map{
		"program": calldata.Str(program),
		"args":    args,
	}}
}

// EqualityCheck runs the registered check program against a leader result.
func EqualityCheck(program string, leader result.Result, args calldata.Value) (Operation, error) {
	enc, err := result.Marshal(leader)
	if err != nil {
		return Operation{}, fmt.Errorf("encode leader result: %w", err)
	}
	if args == nil {
		args = calldata.Null{}
	}
	return Operation{Kind: OpEqualityCheck, Args: calldata.Map{
		"program": calldata.Str(program),
		"leader":  calldata.Bytes(enc),
		"args":    args,
	}}, nil
}

var requiredArgs = map[OpKind][]string{
	OpExecPrompt:    {"prompt", "response_format"},
	OpWebRequest:    {"url", "mode"},
	OpSandboxedEval: {"program", "args"},
	OpEqualityCheck: {"program", "leader", "args"},
}

var allowedChoices = map[string][]string{
	"response_format": {"text", "json"},
	"mode":            {"text", "html", "status"},
}

// Validate checks the kind, required keys and argument types.
func (op Operation) Validate() error {
	required, ok := requiredArgs[op.Kind]
	if !ok {
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
	for _, key := range required {
		v, present := op.Args[key]
		if !present {
			return fmt.Errorf("%s: missing argument %q", op.Kind, key)
		}
		switch key {
		case "prompt", "url", "program", "response_format", "mode":
			s, ok := v.(calldata.Str)
			if !ok {
				return fmt.Errorf("%s: argument %q must be a string, got %s", op.Kind, key, calldata.KindName(v))
			}
			if choices, limited := allowedChoices[key]; limited && !slices.Contains(choices, string(s)) {
				return fmt.Errorf("%s: argument %q must be one of %v, got %q", op.Kind, key, choices, s)
			}
		case "leader":
			if _, ok := v.(calldata.Bytes); !ok {
				return fmt.Errorf("%s: argument %q must be bytes, got %s", op.Kind, key, calldata.KindName(v))
			}
		}
	}
	return nil
}

// Str returns a string argument, or "" when absent.
func (op Operation) Str(key string) string {
	s, _ := op.Args[key].(calldata.Str)
	return string(s)
}

// Program returns the program name of sandboxed_eval and equality_check.
func (op Operation) Program() string {
	return op.Str("program")
}

// Leader decodes the leader result carried by equality_check.
func (op Operation) Leader() (result.Result, error) {
	b, ok := op.Args["leader"].(calldata.Bytes)
	if !ok {
		return nil, fmt.Errorf("%s carries no leader result", op.Kind)
	}
	return result.Unmarshal(b)
}

// Value returns the canonical {"args": ..., "kind": ...} form.
func (op Operation) Value() calldata.Value {
	return calldata.Map{
		"args": op.Args,
		"kind": calldata.Str(op.Kind),
	}
}

// Encode returns the canonical calldata of op.
func (op Operation) Encode() ([]byte, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	return calldata.Encode(op.Value())
}

// String renders op for logs.
func (op Operation) String() string {
	return fmt.Sprintf("%s%s", op.Kind, calldata.Format(op.Args))
}

// OperationFromValue parses the canonical form and validates it.
func OperationFromValue(v calldata.Value) (Operation, error) {
	m, ok := v.(calldata.Map)
	if !ok {
		return Operation{}, fmt.Errorf("operation must be a map, got %s", calldata.KindName(v))
	}
	if len(m) != 2 {
		return Operation{}, fmt.Errorf("operation must have exactly the keys args and kind")
	}
	kind, ok := m["kind"].(calldata.Str)
	if !ok {
		return Operation{}, fmt.Errorf("operation kind must be a string")
	}
	args, ok := m["args"].(calldata.Map)
	if !ok {
		return Operation{}, fmt.Errorf("operation args must be a map")
	}
	op := Operation{Kind: OpKind(kind), Args: args}
	if err := op.Validate(); err != nil {
		return Operation{}, err
	}
	return op, nil
}

// DecodeOperation parses an encoded operation.
func DecodeOperation(b []byte) (Operation, error) {
	v, err := calldata.Decode(b)
	if err != nil {
		return Operation{}, err
	}
	return OperationFromValue(v)
}
