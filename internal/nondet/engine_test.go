package nondet_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/host"
	"github.com/roach88/ndvm/internal/nondet"
	"github.com/roach88/ndvm/internal/programs"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/store"
	"github.com/roach88/ndvm/internal/testutil"
	"github.com/roach88/ndvm/internal/vm"
	"github.com/roach88/ndvm/internal/wire"
)

// network runs one program as leader and validator over a shared journal.
type network struct {
	engine *nondet.Engine
	host   *host.Host
	mem    *store.Memory

	mu      sync.Mutex
	records []nondet.Record
}

func newNetwork(t *testing.T, program vm.Program, opts ...nondet.Option) *network {
	t.Helper()
	return newNetworkWithHost(t, program, nil, opts...)
}

// newNetworkWithHost is newNetwork with extra host options, such as modules.
func newNetworkWithHost(t *testing.T, program vm.Program, hostOpts []host.Option, opts ...nondet.Option) *network {
	t.Helper()
	n := &network{mem: store.NewMemory()}
	logger := testutil.DiscardLogger()

	opts = append([]nondet.Option{
		nondet.WithLogger(logger),
		nondet.WithObserver(func(r nondet.Record) {
			n.mu.Lock()
			defer n.mu.Unlock()
			n.records = append(n.records, r)
		}),
	}, opts...)
	n.engine = nondet.New(opts...)

	reg := programs.NewRegistry(n.engine)
	if program != nil {
		reg.MustRegister("test", program)
	}
	runner := vm.NewRunner(reg, vm.WithLogger(logger))
	hostOpts = append([]host.Option{host.WithRunner(runner), host.WithLogger(logger)}, hostOpts...)
	n.host = host.New(n.mem, n.mem, hostOpts...)
	return n
}

func (n *network) run(t *testing.T, role vm.Role) result.Result {
	t.Helper()
	return n.runEntry(t, role, vm.SandboxedEval("test", calldata.Null{}))
}

func (n *network) runEntry(t *testing.T, role vm.Role, entry vm.Operation) result.Result {
	t.Helper()
	out, err := n.host.Invoke(context.Background(), host.Tx{ID: "tx", Role: role, Entry: entry})
	require.NoError(t, err)
	return out.Result
}

func (n *network) journal(t *testing.T, kind store.Kind) []store.Entry {
	t.Helper()
	all, err := n.mem.Entries(context.Background(), "tx")
	require.NoError(t, err)
	var out []store.Entry
	for _, e := range all {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func returns(v calldata.Value) nondet.LeaderFunc {
	return func(*vm.Context) (calldata.Value, error) { return v, nil }
}

func fails(err error) nondet.LeaderFunc {
	return func(*vm.Context) (calldata.Value, error) { return nil, err }
}

func votes(agree bool, err error) nondet.Validator {
	return nondet.ValidatorFunc(func(*vm.Context, result.Result) (bool, error) { return agree, err })
}

// block runs one nondet call with the engine under test.
func block(n **network, call nondet.Call) vm.Program {
	return func(c *vm.Context, _ calldata.Value) (calldata.Value, error) {
		return (*n).engine.Execute(c, call)
	}
}

func requireResult(t *testing.T, want, got result.Result) {
	t.Helper()
	require.True(t, result.Equal(want, got), "want %s, got %s", result.String(want), result.String(got))
}

func TestLeader_PostsResultAndReturnsIt(t *testing.T) {
	var n *network
	n = newNetwork(t, block(&n, nondet.Call{Leader: returns(calldata.NewInt(42)), Validator: votes(true, nil)}))

	got := n.run(t, vm.RoleLeader)

	requireResult(t, result.Return{Value: calldata.NewInt(42)}, got)
	posted := n.journal(t, store.KindLeaderResult)
	require.Len(t, posted, 1)
	assert.Equal(t, uint32(0), posted[0].CallNo)
	requireResult(t, result.Return{Value: calldata.NewInt(42)}, posted[0].Result)
	assert.Empty(t, n.journal(t, store.KindVote))
}

func TestValidator_AgreementReturnsLeaderResult(t *testing.T) {
	var seen result.Result
	var n *network
	n = newNetwork(t, block(&n, nondet.Call{
		Leader: returns(calldata.NewInt(42)),
		Validator: nondet.ValidatorFunc(func(_ *vm.Context, leader result.Result) (bool, error) {
			seen = leader
			return true, nil
		}),
	}))

	n.run(t, vm.RoleLeader)
	got := n.run(t, vm.RoleValidator)

	requireResult(t, result.Return{Value: calldata.NewInt(42)}, got)
	requireResult(t, result.Return{Value: calldata.NewInt(42)}, seen)
	cast := n.journal(t, store.KindVote)
	require.Len(t, cast, 1)
	requireResult(t, result.Vote(true), cast[0].Result)
}

func TestValidator_DisagreementIsUserError(t *testing.T) {
	var n *network
	n = newNetwork(t, block(&n, nondet.Call{Leader: returns(calldata.NewInt(42)), Validator: votes(false, nil)}))

	n.run(t, vm.RoleLeader)
	got := n.run(t, vm.RoleValidator)

	requireResult(t, result.UserError{Message: "validator_disagrees call 0"}, got)
	cast := n.journal(t, store.KindVote)
	require.Len(t, cast, 1)
	requireResult(t, result.Vote(false), cast[0].Result)
}

func TestValidator_AbsentLeaderResult(t *testing.T) {
	var n *network
	n = newNetwork(t, block(&n, nondet.Call{Leader: returns(calldata.Null{}), Validator: votes(true, nil)}))

	got := n.run(t, vm.RoleValidator)

	requireResult(t, result.VMError{Message: "leader result for call 0 is absent"}, got)
	assert.Empty(t, n.journal(t, store.KindVote))
}

func TestValidator_GuardedVote(t *testing.T) {
	boom := func(*vm.Context) (calldata.Value, error) { panic("leader") }
	validatorPanics := nondet.ValidatorFunc(func(*vm.Context, result.Result) (bool, error) { panic("validator") })

	tests := []struct {
		name       string
		leader     nondet.LeaderFunc
		validator  nondet.Validator
		opts       []nondet.Option
		wantAgree  bool
		wantResult result.Result
	}{
		{
			name:       "same user error",
			leader:     fails(result.UserError{Message: "bad"}),
			validator:  votes(false, result.UserError{Message: "bad"}),
			wantAgree:  true,
			wantResult: result.UserError{Message: "bad"},
		},
		{
			name:       "different user errors",
			leader:     fails(result.UserError{Message: "bad"}),
			validator:  votes(false, result.UserError{Message: "worse"}),
			wantResult: result.UserError{Message: "validator_disagrees call 0"},
		},
		{
			name:       "vm errors agree by default",
			leader:     boom,
			validator:  validatorPanics,
			wantAgree:  true,
			wantResult: result.UserError{Message: "vm error: panic: leader"},
		},
		{
			name:       "vm errors compared exactly",
			leader:     boom,
			validator:  validatorPanics,
			opts:       []nondet.Option{nondet.WithVMErrorsAgree(false)},
			wantResult: result.UserError{Message: "validator_disagrees call 0"},
		},
		{
			name:       "same rollback",
			leader:     fails(result.Rollback{Message: "r"}),
			validator:  votes(false, result.Rollback{Message: "r"}),
			wantAgree:  true,
			wantResult: result.Rollback{Message: "r"},
		},
		{
			name:       "validator error against leader return",
			leader:     returns(calldata.NewInt(1)),
			validator:  votes(true, result.UserError{Message: "bad"}),
			wantResult: result.UserError{Message: "validator_disagrees call 0"},
		},
		{
			name:       "custom user comparator",
			leader:     fails(result.UserError{Message: "Bad"}),
			validator:  votes(false, result.UserError{Message: "bad"}),
			opts:       []nondet.Option{nondet.WithUserErrorComparator(func(a, b string) bool { return len(a) == len(b) })},
			wantAgree:  true,
			wantResult: result.UserError{Message: "Bad"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n *network
			n = newNetwork(t, block(&n, nondet.Call{Leader: tt.leader, Validator: tt.validator}), tt.opts...)

			n.run(t, vm.RoleLeader)
			got := n.run(t, vm.RoleValidator)

			requireResult(t, tt.wantResult, got)
			cast := n.journal(t, store.KindVote)
			require.Len(t, cast, 1)
			requireResult(t, result.Vote(tt.wantAgree), cast[0].Result)
		})
	}
}

func TestValidator_UnsafeVoteErrorDisagrees(t *testing.T) {
	call := nondet.Call{
		Leader:    fails(result.UserError{Message: "bad"}),
		Validator: votes(false, result.UserError{Message: "bad"}),
		Unsafe:    true,
	}
	var n *network
	n = newNetwork(t, block(&n, call))

	n.run(t, vm.RoleLeader)
	got := n.run(t, vm.RoleValidator)

	requireResult(t, result.UserError{Message: "validator_disagrees call 0"}, got)
}

func TestCallNumbersFollowExecutionOrder(t *testing.T) {
	var n *network
	program := func(c *vm.Context, _ calldata.Value) (calldata.Value, error) {
		var out calldata.Array
		for _, v := range []int64{10, 20, 30} {
			got, err := n.engine.Run(c, returns(calldata.NewInt(v)), votes(true, nil))
			if err != nil {
				return nil, err
			}
			out = append(out, got)
		}
		return out, nil
	}
	n = newNetwork(t, program)

	n.run(t, vm.RoleLeader)
	got := n.run(t, vm.RoleValidator)

	want := calldata.Array{calldata.NewInt(10), calldata.NewInt(20), calldata.NewInt(30)}
	requireResult(t, result.Return{Value: want}, got)
	posted := n.journal(t, store.KindLeaderResult)
	require.Len(t, posted, 3)
	for i, e := range posted {
		assert.Equal(t, uint32(i), e.CallNo)
	}
	assert.Len(t, n.journal(t, store.KindVote), 3)
}

func TestNestedNondetIsForbidden(t *testing.T) {
	var n *network
	program := func(c *vm.Context, _ calldata.Value) (calldata.Value, error) {
		return n.engine.Run(c, func(nc *vm.Context) (calldata.Value, error) {
			return n.engine.Run(nc, returns(calldata.Null{}), votes(true, nil))
		}, votes(true, nil))
	}
	n = newNetwork(t, program)

	got := n.run(t, vm.RoleLeader)

	requireResult(t, result.UserError{Message: "vm error: nondet calls are forbidden in this context"}, got)
}

func TestLeader_TimeoutIsVMError(t *testing.T) {
	slow := func(c *vm.Context) (calldata.Value, error) {
		<-c.Std().Done()
		return nil, c.Err()
	}
	var n *network
	n = newNetwork(t, block(&n, nondet.Call{Leader: slow, Validator: votes(true, nil)}), nondet.WithTimeout(10*time.Millisecond))

	got := n.run(t, vm.RoleLeader)

	requireResult(t, result.UserError{Message: "vm error: timeout"}, got)
	posted := n.journal(t, store.KindLeaderResult)
	require.Len(t, posted, 1)
	requireResult(t, result.VMError{Message: "timeout"}, posted[0].Result)
}

func TestLeader_SlowModuleCallTimesOut(t *testing.T) {
	slow := host.ModuleFunc(func(ctx context.Context, _ string, _ calldata.Value) (result.Result, error) {
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
		}
		return result.Return{Value: calldata.Str("late")}, nil
	})
	leader := func(c *vm.Context) (calldata.Value, error) {
		r, err := c.ModuleCall(vm.ModuleWebRender, calldata.Str("https://example.com"))
		if err != nil {
			return nil, err
		}
		return result.Raise(r)
	}
	var n *network
	n = newNetworkWithHost(t,
		block(&n, nondet.Call{Leader: leader, Validator: votes(true, nil)}),
		[]host.Option{host.WithModule(vm.ModuleWebRender, slow)},
		nondet.WithTimeout(20*time.Millisecond),
	)

	out, err := n.host.Invoke(context.Background(), host.Tx{
		ID:    "tx",
		Role:  vm.RoleLeader,
		Entry: vm.SandboxedEval("test", calldata.Null{}),
	})

	require.NoError(t, err)
	requireResult(t, result.UserError{Message: "vm error: timeout"}, out.Result)
	posted := n.journal(t, store.KindLeaderResult)
	require.Len(t, posted, 1)
	requireResult(t, result.VMError{Message: "timeout"}, posted[0].Result)
}

func TestLeader_RollbackStopsContract(t *testing.T) {
	var (
		n     *network
		after bool
	)
	slot := wire.SlotID{1}
	program := func(c *vm.Context, _ calldata.Value) (calldata.Value, error) {
		v, err := n.engine.Execute(c, nondet.Call{
			Leader:    fails(result.Rollback{Message: "x"}),
			Validator: votes(true, nil),
		})
		if err != nil {
			return nil, err
		}
		after = true
		return v, c.Write(slot, 0, []byte("unreachable"))
	}
	n = newNetwork(t, program)

	got := n.run(t, vm.RoleLeader)

	requireResult(t, result.Rollback{Message: "x"}, got)
	assert.False(t, after)
	posted := n.journal(t, store.KindLeaderResult)
	require.Len(t, posted, 1)
	requireResult(t, result.Rollback{Message: "x"}, posted[0].Result)
	data, err := n.mem.ReadSlot(context.Background(), calldata.Address{}, slot, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 4), data)
}

func TestRunLazy_UnforcedCallNeverRuns(t *testing.T) {
	n := newNetwork(t, nil)
	entry := vm.SandboxedEval(programs.NameLazy, calldata.Map{
		"skipped": calldata.Str("skipped"),
		"forced":  calldata.Str("forced"),
	})

	leader := n.runEntry(t, vm.RoleLeader, entry)
	validator := n.runEntry(t, vm.RoleValidator, entry)

	requireResult(t, result.Return{Value: calldata.Str("forced")}, leader)
	requireResult(t, result.Return{Value: calldata.Str("forced")}, validator)
	posted := n.journal(t, store.KindLeaderResult)
	require.Len(t, posted, 1)
	assert.Equal(t, uint32(0), posted[0].CallNo)
}

func TestObserver_RecordsReportedCalls(t *testing.T) {
	var n *network
	n = newNetwork(t, block(&n, nondet.Call{Leader: returns(calldata.Str("x")), Validator: votes(true, nil)}))

	n.run(t, vm.RoleLeader)
	n.run(t, vm.RoleValidator)

	require.Len(t, n.records, 2)
	lead, val := n.records[0], n.records[1]
	assert.Equal(t, vm.RoleLeader, lead.Role)
	assert.Equal(t, nondet.StateReported, lead.State)
	requireResult(t, result.Return{Value: calldata.Str("x")}, lead.Leader)
	assert.Equal(t, vm.RoleValidator, val.Role)
	assert.True(t, val.Agree)
	requireResult(t, result.Vote(true), val.Answer)
}

func TestReduce(t *testing.T) {
	e := nondet.New()
	ret := func(v calldata.Value) result.Result { return result.Return{Value: v} }

	tests := []struct {
		name   string
		leader result.Result
		answer result.Result
		want   bool
	}{
		{"return true", ret(calldata.Null{}), result.Vote(true), true},
		{"return false", ret(calldata.Null{}), result.Vote(false), false},
		{"return non bool", ret(calldata.NewInt(1)), ret(calldata.NewInt(1)), false},
		{"user errors equal", result.UserError{Message: "a"}, result.UserError{Message: "a"}, true},
		{"user errors differ", result.UserError{Message: "a"}, result.UserError{Message: "b"}, false},
		{"vm errors", result.VMError{Message: "a"}, result.VMError{Message: "b"}, true},
		{"rollbacks equal", result.Rollback{Message: "a"}, result.Rollback{Message: "a"}, true},
		{"rollbacks differ", result.Rollback{Message: "a"}, result.Rollback{Message: "b"}, false},
		{"kind mismatch", result.UserError{Message: "a"}, result.VMError{Message: "a"}, false},
		{"missing answer", ret(calldata.Null{}), nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Reduce(tt.leader, tt.answer))
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "leader_running", nondet.StateLeaderRunning.String())
	assert.Equal(t, "state(42)", nondet.State(42).String())
}
