package eqprinciple

import (
	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/nondet"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/vm"
)

func execute(op vm.Operation) nondet.LeaderFunc {
	return func(c *vm.Context) (calldata.Value, error) {
		return c.Execute(op)
	}
}

// StrictEq accepts the leader result only if re-running op in a sandbox
// yields a structurally equal Return. When the sandbox fails, its error is
// raised as the vote and compared with the leader outcome by kind, so two
// VMErrors agree under the engine VMError comparator.
func StrictEq(op vm.Operation) nondet.Call {
	return nondet.Call{
		Leader: execute(op),
		Validator: nondet.ValidatorFunc(func(c *vm.Context, leader result.Result) (bool, error) {
			mine, err := c.SpawnSandbox(op, false)
			if err != nil {
				return false, err
			}
			if _, ok := mine.(result.Return); !ok {
				_, err := result.Raise(mine)
				return false, err
			}
			return result.Equal(mine, leader), nil
		}),
	}
}

// PromptComparative accepts the leader result if the oracle judges both
// answers equivalent under principle.
func PromptComparative(op vm.Operation, principle string, oracle Oracle) nondet.Call {
	if oracle == nil {
		oracle = ModuleOracle{}
	}
	return nondet.Call{
		Leader: execute(op),
		Validator: nondet.ValidatorFunc(func(c *vm.Context, leader result.Result) (bool, error) {
			mine, err := c.Execute(op)
			if err != nil {
				return false, err
			}
			ret, ok := leader.(result.Return)
			if !ok {
				return false, nil
			}
			return judgeBool(c, oracle, TemplateComparative, calldata.Map{
				"leader_answer":    calldata.Str(calldata.Format(ret.Value)),
				"validator_answer": calldata.Str(calldata.Format(mine)),
				"principle":        calldata.Str(principle),
			})
		}),
	}
}

// PromptNonComparative runs task on the text produced by op. The leader
// returns the oracle output; validators check it against their own input
// and criteria.
func PromptNonComparative(op vm.Operation, task, criteria string, oracle Oracle) nondet.Call {
	if oracle == nil {
		oracle = ModuleOracle{}
	}
	return nondet.Call{
		Leader: func(c *vm.Context) (calldata.Value, error) {
			v, err := c.Execute(op)
			if err != nil {
				return nil, err
			}
			input, err := requireText(v)
			if err != nil {
				return nil, err
			}
			out, err := judgeText(c, oracle, TemplateNonComparativeLeader, calldata.Map{
				"task":     calldata.Str(task),
				"input":    calldata.Str(input),
				"criteria": calldata.Str(criteria),
			})
			if err != nil {
				return nil, err
			}
			return calldata.Str(out), nil
		},
		Validator: nondet.ValidatorFunc(func(c *vm.Context, leader result.Result) (bool, error) {
			v, err := c.Execute(op)
			if err != nil {
				return false, err
			}
			input, err := requireText(v)
			if err != nil {
				return false, err
			}
			ret, ok := leader.(result.Return)
			if !ok {
				return false, nil
			}
			return judgeBool(c, oracle, TemplateNonComparativeValidator, calldata.Map{
				"task":     calldata.Str(task),
				"output":   ret.Value,
				"input":    calldata.Str(input),
				"criteria": calldata.Str(criteria),
			})
		}),
	}
}

// Custom pairs op with a user-supplied validator.
func Custom(op vm.Operation, validator nondet.Validator) nondet.Call {
	return nondet.Call{Leader: execute(op), Validator: validator}
}

// Check pairs op with a registered check program. The validator runs the
// check as an equality_check operation in its own context.
func Check(op vm.Operation, check string, args calldata.Value) nondet.Call {
	return nondet.Call{
		Leader: execute(op),
		Validator: nondet.ValidatorFunc(func(c *vm.Context, leader result.Result) (bool, error) {
			eq, err := vm.EqualityCheck(check, leader, args)
			if err != nil {
				return false, result.VMErrorf("%v", err)
			}
			v, err := c.Execute(eq)
			if err != nil {
				return false, err
			}
			b, _ := v.(calldata.Bool)
			return bool(b), nil
		}),
	}
}
