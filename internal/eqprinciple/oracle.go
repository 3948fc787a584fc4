package eqprinciple

import (
	"fmt"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/vm"
)

// Judgment templates understood by the oracle.
const (
	TemplateComparative             = "EqComparative"
	TemplateNonComparativeLeader    = "EqNonComparativeLeader"
	TemplateNonComparativeValidator = "EqNonComparativeValidator"
)

// Oracle is the external judgment collaborator.
type Oracle interface {
	Judge(c *vm.Context, template string, fields calldata.Map) (calldata.Value, error)
}

// ModuleOracle submits judgments to the llm.template host module. The
// payload is the fields map with a "template" key added.
type ModuleOracle struct{}

// Judge implements Oracle.
func (ModuleOracle) Judge(c *vm.Context, template string, fields calldata.Map) (calldata.Value, error) {
	payload := make(calldata.Map, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	payload["template"] = calldata.Str(template)

	r, err := c.ModuleCall(vm.ModuleLLMTemplate, payload)
	if err != nil {
		return nil, err
	}
	return result.Raise(r)
}

func judgeBool(c *vm.Context, o Oracle, template string, fields calldata.Map) (bool, error) {
	v, err := o.Judge(c, template, fields)
	if err != nil {
		return false, err
	}
	b, ok := v.(calldata.Bool)
	if !ok {
		return false, result.VMErrorf("%s answered %s, want bool", template, calldata.KindName(v))
	}
	return bool(b), nil
}

func judgeText(c *vm.Context, o Oracle, template string, fields calldata.Map) (string, error) {
	v, err := o.Judge(c, template, fields)
	if err != nil {
		return "", err
	}
	s, ok := v.(calldata.Str)
	if !ok {
		return "", result.VMErrorf("%s answered %s, want str", template, calldata.KindName(v))
	}
	return string(s), nil
}

func requireText(v calldata.Value) (string, error) {
	s, ok := v.(calldata.Str)
	if !ok {
		return "", result.UserError{Message: fmt.Sprintf("input must be a string, got %s", calldata.KindName(v))}
	}
	return string(s), nil
}
