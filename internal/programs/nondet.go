package programs

import (
	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/deferred"
	"github.com/roach88/ndvm/internal/eqprinciple"
	"github.com/roach88/ndvm/internal/nondet"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/vm"
)

// nondetPrograms builds the programs that run nondet blocks through engine.
type nondetPrograms struct {
	engine *nondet.Engine
	oracle eqprinciple.Oracle
}

// Strict runs a registered program under strict equality.
//
//	{"program": "echo", "args": ...}
func (p nondetPrograms) Strict(c *vm.Context, v calldata.Value) (calldata.Value, error) {
	a, err := mapArgs(v)
	if err != nil {
		return nil, err
	}
	program, err := a.str("program")
	if err != nil {
		return nil, err
	}
	return p.engine.Execute(c, eqprinciple.StrictEq(vm.SandboxedEval(program, a.value("args"))))
}

// Prompt asks the LLM module and accepts answers the oracle judges
// equivalent under principle.
//
//	{"prompt": "...", "principle": "...", "format": "text"}
func (p nondetPrograms) Prompt(c *vm.Context, v calldata.Value) (calldata.Value, error) {
	a, err := mapArgs(v)
	if err != nil {
		return nil, err
	}
	prompt, err := a.str("prompt")
	if err != nil {
		return nil, err
	}
	principle, err := a.str("principle")
	if err != nil {
		return nil, err
	}
	format, err := a.strOr("format", "text")
	if err != nil {
		return nil, err
	}
	return p.engine.Execute(c, eqprinciple.PromptComparative(vm.ExecPrompt(prompt, format), principle, p.oracle))
}

// Summarize renders a page and transforms it with the oracle; validators
// judge the leader output against their own rendering.
//
//	{"url": "...", "task": "...", "criteria": "..."}
func (p nondetPrograms) Summarize(c *vm.Context, v calldata.Value) (calldata.Value, error) {
	a, err := mapArgs(v)
	if err != nil {
		return nil, err
	}
	url, err := a.str("url")
	if err != nil {
		return nil, err
	}
	task, err := a.str("task")
	if err != nil {
		return nil, err
	}
	criteria, err := a.str("criteria")
	if err != nil {
		return nil, err
	}
	return p.engine.Execute(c, eqprinciple.PromptNonComparative(vm.WebRequest(url, "text"), task, criteria, p.oracle))
}

// Web fetches a page and requires validators to see the same rendering.
//
//	{"url": "...", "mode": "status"}
func (p nondetPrograms) Web(c *vm.Context, v calldata.Value) (calldata.Value, error) {
	a, err := mapArgs(v)
	if err != nil {
		return nil, err
	}
	url, err := a.str("url")
	if err != nil {
		return nil, err
	}
	mode, err := a.strOr("mode", "text")
	if err != nil {
		return nil, err
	}
	return p.engine.Execute(c, eqprinciple.StrictEq(vm.WebRequest(url, mode)))
}

// Checked runs a registered program and validates the leader result with a
// registered check. With unsafe set, an error raised by the check is a
// disagreement.
//
//	{"program": "...", "args": ..., "check": "...", "check_args": ..., "unsafe": false}
func (p nondetPrograms) Checked(c *vm.Context, v calldata.Value) (calldata.Value, error) {
	a, err := mapArgs(v)
	if err != nil {
		return nil, err
	}
	program, err := a.str("program")
	if err != nil {
		return nil, err
	}
	check, err := a.str("check")
	if err != nil {
		return nil, err
	}
	op := vm.SandboxedEval(program, a.value("args"))
	call := eqprinciple.Check(op, check, a.value("check_args"))
	if a.boolean("unsafe") {
		return p.engine.RunUnsafe(c, call.Leader, call.Validator)
	}
	return p.engine.Run(c, call.Leader, call.Validator)
}

// Render returns the first of several pages that renders. Validators
// accept the leader page only if their own first rendering is equal.
//
//	{"urls": ["...", "..."], "mode": "text"}
func (p nondetPrograms) Render(c *vm.Context, v calldata.Value) (calldata.Value, error) {
	a, err := mapArgs(v)
	if err != nil {
		return nil, err
	}
	urls, err := a.strings("urls")
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, result.UserErrorf("argument %q must not be empty", "urls")
	}
	mode, err := a.strOr("mode", "text")
	if err != nil {
		return nil, err
	}
	render := firstRender(urls, mode)
	return p.engine.Run(c, render, nondet.ValidatorFunc(func(c *vm.Context, leader result.Result) (bool, error) {
		mine, err := render(c)
		if err != nil {
			return false, err
		}
		return result.Equal(result.Return{Value: mine}, leader), nil
	}))
}

// firstRender requests every page lazily and forces them in order until one
// renders. Pages after it are closed unforced and never requested.
func firstRender(urls []string, mode string) nondet.LeaderFunc {
	return func(c *vm.Context) (calldata.Value, error) {
		pages := make([]*deferred.Handle[calldata.Value], len(urls))
		for i, url := range urls {
			pages[i] = deferred.Map(c.ModuleCallLazy(vm.ModuleWebRender, vm.WebRequest(url, mode).Args), result.Raise)
		}
		defer func() {
			for _, page := range pages {
				_ = page.Close()
			}
		}()

		var err error
		for _, page := range pages {
			var v calldata.Value
			if v, err = page.Force(); err == nil {
				return v, nil
			}
			if vm.IsFatal(err) {
				return nil, err
			}
		}
		return nil, err
	}
}

// Lazy schedules two strict calls and forces only the second one. The
// first is closed unforced and never reaches the host.
//
//	{"skipped": <args>, "forced": <args>}
func (p nondetPrograms) Lazy(c *vm.Context, v calldata.Value) (calldata.Value, error) {
	a, err := mapArgs(v)
	if err != nil {
		return nil, err
	}
	skipped := p.engine.RunLazy(c, eqprinciple.StrictEq(vm.SandboxedEval("echo", a.value("skipped"))))
	forced := p.engine.RunLazy(c, eqprinciple.StrictEq(vm.SandboxedEval("echo", a.value("forced"))))
	if err := skipped.Close(); err != nil {
		return nil, err
	}
	defer forced.Close()
	return forced.Force()
}

// Sandbox runs a registered program in a sandbox and returns its outcome
// as a map instead of raising it.
//
//	{"program": "...", "args": ..., "allow_write": false}
func Sandbox(c *vm.Context, v calldata.Value) (calldata.Value, error) {
	a, err := mapArgs(v)
	if err != nil {
		return nil, err
	}
	program, err := a.str("program")
	if err != nil {
		return nil, err
	}
	r, err := c.SpawnSandbox(vm.SandboxedEval(program, a.value("args")), a.boolean("allow_write"))
	if err != nil {
		return nil, err
	}
	return outcome(r), nil
}

// Fallback runs the primary program in a sandbox and, only if it does not
// return, the fallback program. The outcome is returned as a map.
//
//	{"primary": {"program": "...", "args": ...}, "fallback": {"program": "...", "args": ...}}
func Fallback(c *vm.Context, v calldata.Value) (calldata.Value, error) {
	a, err := mapArgs(v)
	if err != nil {
		return nil, err
	}
	primary, err := sandboxOp(a, "primary")
	if err != nil {
		return nil, err
	}
	fallback, err := sandboxOp(a, "fallback")
	if err != nil {
		return nil, err
	}

	first := c.SpawnSandboxLazy(primary, false)
	second := c.SpawnSandboxLazy(fallback, false)
	defer first.Close()
	defer second.Close()

	r, err := first.Force()
	if err != nil {
		return nil, err
	}
	if _, ok := r.(result.Return); !ok {
		if r, err = second.Force(); err != nil {
			return nil, err
		}
	}
	return outcome(r), nil
}

func sandboxOp(a args, key string) (vm.Operation, error) {
	m, ok := a.m[key].(calldata.Map)
	if !ok {
		return vm.Operation{}, result.UserErrorf("argument %q must be a map", key)
	}
	program, err := (args{m: m}).str("program")
	if err != nil {
		return vm.Operation{}, err
	}
	return vm.SandboxedEval(program, (args{m: m}).value("args")), nil
}

// IntInRange accepts a leader Return holding an integer within
// [min, max] of check_args.
func IntInRange(_ *vm.Context, leader result.Result, v calldata.Value) (bool, error) {
	a, err := mapArgs(v)
	if err != nil {
		return false, err
	}
	lo, err := a.integer("min")
	if err != nil {
		return false, err
	}
	hi, err := a.integer("max")
	if err != nil {
		return false, err
	}
	ret, ok := leader.(result.Return)
	if !ok {
		return false, nil
	}
	n, ok := ret.Value.(calldata.Int)
	if !ok {
		return false, nil
	}
	return n.Cmp(lo) >= 0 && n.Cmp(hi) <= 0, nil
}

// SameKind accepts any leader outcome whose code matches check_args.code.
func SameKind(_ *vm.Context, leader result.Result, v calldata.Value) (bool, error) {
	a, err := mapArgs(v)
	if err != nil {
		return false, err
	}
	code, err := a.str("code")
	if err != nil {
		return false, err
	}
	return leader.Code().String() == code, nil
}
