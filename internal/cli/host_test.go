package cli

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/config"
	"github.com/roach88/ndvm/internal/host"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/store"
	"github.com/roach88/ndvm/internal/testutil"
	"github.com/roach88/ndvm/internal/vm"
)

type served struct {
	out host.Outcome
	err error
}

func newTestHost(t *testing.T) (*host.Host, *vm.Runner, *store.Store) {
	t.Helper()
	cfg := config.Default()
	logger := testutil.DiscardLogger()

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	m, err := newMetrics(&cfg)
	require.NoError(t, err)
	runner := newRunner(&cfg, logger, m)
	h, err := newHost(&cfg, logger, m, st, st, runner)
	require.NoError(t, err)
	return h, runner, st
}

func TestHostGuestOverTCP(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h, runner, st := newTestHost(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	tx := host.Tx{
		ID:    "tcp-1",
		Role:  vm.RoleLeader,
		Entry: vm.SandboxedEval("nondet.strict", calldata.Map{"program": calldata.Str("echo"), "args": calldata.NewInt(42)}),
	}
	want := result.Return{Value: calldata.NewInt(42)}
	done := make(chan served, 1)
	go func() {
		out, err := serveOne(ctx, ln, h, tx)
		done <- served{out, err}
	}()

	res, err := dialGuest(ctx, ln.Addr().String(), runner, vm.Invocation{
		Role:        vm.RoleLeader,
		Permissions: vm.TopLevel(),
		Gas:         config.Default().Host.InitialGas,
	})
	require.NoError(t, err)
	assert.True(t, result.Equal(want, res), "got %s", result.String(res))

	s := <-done
	require.NoError(t, s.err)
	assert.Equal(t, "tcp-1", s.out.Tx)
	assert.Equal(t, "leader", s.out.Node)
	assert.True(t, result.Equal(want, s.out.Result), "got %s", result.String(s.out.Result))

	leader, ok, err := st.LeaderResult(ctx, "tcp-1", 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, result.Equal(want, leader), "got %s", result.String(leader))
}

func TestServeOne_Cancelled(t *testing.T) {
	h, _, _ := newTestHost(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = serveOne(ctx, ln, h, host.Tx{ID: "never", Role: vm.RoleLeader, Entry: vm.SandboxedEval("echo", calldata.Null{})})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDialGuest_NoHost(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, runner, _ := newTestHost(t)
	_, err = dialGuest(context.Background(), addr, runner, vm.Invocation{Role: vm.RoleLeader, Permissions: vm.TopLevel()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial host")
}

func TestGuestCommand_InvalidRole(t *testing.T) {
	_, err := execute(t, NewGuestCommand(&RootOptions{Format: "text"}), "--role", "observer")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
