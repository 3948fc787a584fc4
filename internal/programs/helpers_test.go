package programs_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/host"
	"github.com/roach88/ndvm/internal/nondet"
	"github.com/roach88/ndvm/internal/programs"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/store"
	"github.com/roach88/ndvm/internal/testutil"
	"github.com/roach88/ndvm/internal/vm"
)

var contract = testutil.Address(0xc0)

type fixture struct {
	host *host.Host
	mem  *store.Memory
}

func newFixture(t *testing.T, opts ...host.Option) *fixture {
	t.Helper()
	logger := testutil.DiscardLogger()
	engine := nondet.New(nondet.WithLogger(logger))
	runner := vm.NewRunner(programs.NewRegistry(engine),
		vm.WithLogger(logger),
		vm.WithTokenGenerator(testutil.NewSequentialTokenGenerator("inv")),
	)
	mem := store.NewMemory()
	opts = append([]host.Option{host.WithLogger(logger), host.WithRunner(runner)}, opts...)
	return &fixture{host: host.New(mem, mem, opts...), mem: mem}
}

func (f *fixture) invoke(t *testing.T, txID string, role vm.Role, program string, args calldata.Value) result.Result {
	t.Helper()
	out, err := f.host.Invoke(context.Background(), host.Tx{
		ID:      txID,
		Role:    role,
		Message: vm.MessageData{Contract: contract, Sender: testutil.Address(0x5e)},
		Entry:   vm.SandboxedEval(program, args),
	})
	require.NoError(t, err)
	require.NotNil(t, out.Result)
	return out.Result
}

func (f *fixture) run(t *testing.T, program string, args calldata.Value) result.Result {
	t.Helper()
	return f.invoke(t, t.Name(), vm.RoleLeader, program, args)
}

func (f *fixture) entries(t *testing.T, txID string, kind store.Kind) []store.Entry {
	t.Helper()
	all, err := f.mem.Entries(context.Background(), txID)
	require.NoError(t, err)
	var out []store.Entry
	for _, e := range all {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func ret(v calldata.Value) result.Result {
	return result.Return{Value: v}
}
