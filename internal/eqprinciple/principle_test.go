package eqprinciple_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/eqprinciple"
	"github.com/roach88/ndvm/internal/host"
	"github.com/roach88/ndvm/internal/nondet"
	"github.com/roach88/ndvm/internal/programs"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/store"
	"github.com/roach88/ndvm/internal/testutil"
	"github.com/roach88/ndvm/internal/vm"
)

type testNet struct {
	engine *nondet.Engine
	reg    *vm.Registry
	host   *host.Host
}

func newTestNet(t *testing.T, opts ...host.Option) *testNet {
	t.Helper()
	logger := testutil.DiscardLogger()
	engine := nondet.New(nondet.WithLogger(logger))
	reg := programs.NewRegistry(engine)
	reg.MustRegister("whoami", func(c *vm.Context, _ calldata.Value) (calldata.Value, error) {
		return calldata.Str(c.Role().String()), nil
	})
	reg.MustRegister("refuse", func(c *vm.Context, _ calldata.Value) (calldata.Value, error) {
		return nil, result.UserErrorf("refused by %s", c.Role())
	})
	reg.MustRegister("fault", func(c *vm.Context, _ calldata.Value) (calldata.Value, error) {
		return nil, result.VMErrorf("fault on %s", c.Role())
	})
	mem := store.NewMemory()
	runner := vm.NewRunner(reg, vm.WithLogger(logger))
	opts = append([]host.Option{host.WithRunner(runner), host.WithLogger(logger)}, opts...)
	return &testNet{engine: engine, reg: reg, host: host.New(mem, mem, opts...)}
}

// both runs entry as leader and then as validator of the same transaction.
func (n *testNet) both(t *testing.T, program string, args calldata.Value) (leader, validator result.Result) {
	t.Helper()
	entry := vm.SandboxedEval(program, args)
	for _, role := range []vm.Role{vm.RoleLeader, vm.RoleValidator} {
		out, err := n.host.Invoke(context.Background(), host.Tx{ID: "tx", Role: role, Entry: entry})
		require.NoError(t, err)
		if role == vm.RoleLeader {
			leader = out.Result
		} else {
			validator = out.Result
		}
	}
	return leader, validator
}

func requireResult(t *testing.T, want, got result.Result) {
	t.Helper()
	require.True(t, result.Equal(want, got), "want %s, got %s", result.String(want), result.String(got))
}

var disagrees = result.UserError{Message: "validator_disagrees call 0"}

func TestStrictEq(t *testing.T) {
	tests := []struct {
		name          string
		program       string
		args          calldata.Value
		wantLeader    result.Result
		wantValidator result.Result
	}{
		{
			name:          "equal returns",
			program:       programs.NameEcho,
			args:          calldata.NewInt(42),
			wantLeader:    result.Return{Value: calldata.NewInt(42)},
			wantValidator: result.Return{Value: calldata.NewInt(42)},
		},
		{
			name:          "equal user errors",
			program:       programs.NameFail,
			args:          calldata.Map{"message": calldata.Str("no")},
			wantLeader:    result.UserError{Message: "no"},
			wantValidator: result.UserError{Message: "no"},
		},
		{
			name:          "different returns",
			program:       "whoami",
			args:          calldata.Null{},
			wantLeader:    result.Return{Value: calldata.Str("leader")},
			wantValidator: disagrees,
		},
		{
			name:          "different vm errors agree",
			program:       "fault",
			args:          calldata.Null{},
			wantLeader:    result.UserError{Message: "vm error: fault on leader"},
			wantValidator: result.UserError{Message: "vm error: fault on leader"},
		},
		{
			name:          "different user errors",
			program:       "refuse",
			args:          calldata.Null{},
			wantLeader:    result.UserError{Message: "refused by leader"},
			wantValidator: disagrees,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newTestNet(t)
			leader, validator := n.both(t, programs.NameStrict, calldata.Map{
				"program": calldata.Str(tt.program),
				"args":    tt.args,
			})
			requireResult(t, tt.wantLeader, leader)
			requireResult(t, tt.wantValidator, validator)
		})
	}
}

// recorder is a module that records payloads and answers from a Canned list.
type recorder struct {
	mu       sync.Mutex
	answers  host.Canned
	payloads []calldata.Map
}

func (r *recorder) Call(ctx context.Context, node string, payload calldata.Value) (result.Result, error) {
	r.mu.Lock()
	if m, ok := payload.(calldata.Map); ok {
		r.payloads = append(r.payloads, m)
	}
	r.mu.Unlock()
	return r.answers.Call(ctx, node, payload)
}

func TestPromptComparative(t *testing.T) {
	prompts := host.Canned{
		{Node: "leader", Result: result.Return{Value: calldata.Str("Paris")}},
		{Node: "validator", Result: result.Return{Value: calldata.Str("paris")}},
	}
	args := calldata.Map{
		"prompt":    calldata.Str("capital of France?"),
		"principle": calldata.Str("same city"),
	}

	t.Run("judged equivalent", func(t *testing.T) {
		judge := &recorder{answers: host.Canned{{Result: result.Vote(true)}}}
		n := newTestNet(t,
			host.WithModule(vm.ModuleLLMPrompt, prompts),
			host.WithModule(vm.ModuleLLMTemplate, judge),
		)

		leader, validator := n.both(t, programs.NamePrompt, args)

		requireResult(t, result.Return{Value: calldata.Str("Paris")}, leader)
		requireResult(t, result.Return{Value: calldata.Str("Paris")}, validator)
		require.Len(t, judge.payloads, 1)
		p := judge.payloads[0]
		assert.Equal(t, calldata.Str(eqprinciple.TemplateComparative), p["template"])
		assert.Equal(t, calldata.Str("Paris"), p["leader_answer"])
		assert.Equal(t, calldata.Str("paris"), p["validator_answer"])
		assert.Equal(t, calldata.Str("same city"), p["principle"])
	})

	t.Run("judged different", func(t *testing.T) {
		n := newTestNet(t,
			host.WithModule(vm.ModuleLLMPrompt, prompts),
			host.WithModule(vm.ModuleLLMTemplate, host.Canned{{Result: result.Vote(false)}}),
		)

		_, validator := n.both(t, programs.NamePrompt, args)

		requireResult(t, disagrees, validator)
	})

	t.Run("judge answers non bool", func(t *testing.T) {
		n := newTestNet(t,
			host.WithModule(vm.ModuleLLMPrompt, prompts),
			host.WithModule(vm.ModuleLLMTemplate, host.Canned{{Result: result.Return{Value: calldata.Str("yes")}}}),
		)

		_, validator := n.both(t, programs.NamePrompt, args)

		// The vote fails with a VMError while the leader returned.
		requireResult(t, disagrees, validator)
	})
}

func TestPromptNonComparative(t *testing.T) {
	judge := host.Canned{
		{Match: map[string]string{"template": eqprinciple.TemplateNonComparativeLeader}, Result: result.Return{Value: calldata.Str("short")}},
		{Match: map[string]string{"template": eqprinciple.TemplateNonComparativeValidator, "output": "short"}, Result: result.Vote(true)},
		{Match: map[string]string{"template": eqprinciple.TemplateNonComparativeValidator}, Result: result.Vote(false)},
	}
	args := calldata.Map{
		"url":      calldata.Str("https://example.org"),
		"task":     calldata.Str("summarize"),
		"criteria": calldata.Str("one word"),
	}

	t.Run("accepted", func(t *testing.T) {
		n := newTestNet(t,
			host.WithModule(vm.ModuleWebRender, host.Canned{{Result: result.Return{Value: calldata.Str("a long page")}}}),
			host.WithModule(vm.ModuleLLMTemplate, judge),
		)

		leader, validator := n.both(t, programs.NameSummarize, args)

		requireResult(t, result.Return{Value: calldata.Str("short")}, leader)
		requireResult(t, result.Return{Value: calldata.Str("short")}, validator)
	})

	t.Run("input must be text", func(t *testing.T) {
		n := newTestNet(t,
			host.WithModule(vm.ModuleWebRender, host.Canned{{Result: result.Return{Value: calldata.NewInt(404)}}}),
			host.WithModule(vm.ModuleLLMTemplate, judge),
		)

		leader, validator := n.both(t, programs.NameSummarize, args)

		want := result.UserError{Message: "input must be a string, got int"}
		requireResult(t, want, leader)
		requireResult(t, want, validator)
	})
}

func TestCheck(t *testing.T) {
	checked := func(v int64) calldata.Map {
		return calldata.Map{
			"program":    calldata.Str(programs.NameEcho),
			"args":       calldata.NewInt(v),
			"check":      calldata.Str(programs.CheckIntInRange),
			"check_args": calldata.Map{"min": calldata.NewInt(1), "max": calldata.NewInt(10)},
		}
	}

	t.Run("in range", func(t *testing.T) {
		_, validator := newTestNet(t).both(t, programs.NameChecked, checked(5))
		requireResult(t, result.Return{Value: calldata.NewInt(5)}, validator)
	})

	t.Run("out of range", func(t *testing.T) {
		_, validator := newTestNet(t).both(t, programs.NameChecked, checked(50))
		requireResult(t, disagrees, validator)
	})

	t.Run("unknown check", func(t *testing.T) {
		args := checked(5)
		args["check"] = calldata.Str("nope")
		_, validator := newTestNet(t).both(t, programs.NameChecked, args)
		requireResult(t, disagrees, validator)
	})
}

type constOracle struct {
	answer    calldata.Value
	templates []string
}

func (o *constOracle) Judge(_ *vm.Context, template string, _ calldata.Map) (calldata.Value, error) {
	o.templates = append(o.templates, template)
	return o.answer, nil
}

func TestCustomAndOracle(t *testing.T) {
	oracle := &constOracle{answer: calldata.Bool(true)}
	n := newTestNet(t, host.WithModule(vm.ModuleLLMPrompt, host.Canned{{Result: result.Return{Value: calldata.Str("hi")}}}))
	n.reg.MustRegister("judged", func(c *vm.Context, _ calldata.Value) (calldata.Value, error) {
		return n.engine.Execute(c, eqprinciple.PromptComparative(vm.ExecPrompt("hello", ""), "same greeting", oracle))
	})

	_, judged := n.both(t, "judged", calldata.Null{})
	requireResult(t, result.Return{Value: calldata.Str("hi")}, judged)
	assert.Equal(t, []string{eqprinciple.TemplateComparative}, oracle.templates)

	n2 := newTestNet(t, host.WithModule(vm.ModuleLLMPrompt, host.Canned{{Result: result.Return{Value: calldata.Str("hi")}}}))
	n2.reg.MustRegister("custom", func(c *vm.Context, _ calldata.Value) (calldata.Value, error) {
		return n2.engine.Execute(c, eqprinciple.Custom(vm.ExecPrompt("hello", ""),
			nondet.ValidatorFunc(func(_ *vm.Context, leader result.Result) (bool, error) {
				return result.Equal(leader, result.Return{Value: calldata.Str("hi")}), nil
			})))
	})
	_, custom := n2.both(t, "custom", calldata.Null{})
	requireResult(t, result.Return{Value: calldata.Str("hi")}, custom)
}
