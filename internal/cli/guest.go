package cli

import (
	"context"
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/roach88/ndvm/internal/config"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/vm"
)

// GuestOptions holds flags for the guest command.
type GuestOptions struct {
	*RootOptions
	Connect  string
	Role     string
	Contract string
	Sender   string
	Gas      uint64
}

// NewGuestCommand creates the guest command.
func NewGuestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GuestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "guest",
		Short: "Execute the entry a host serves over TCP",
		Long: `Connect to a host, fetch the entry operation with GET_CALLDATA,
execute it with the builtin programs and report the outcome.

The role must match the one the host serves.

Examples:
  ndvm guest --connect 127.0.0.1:7070
  ndvm guest --connect 127.0.0.1:7070 --role validator --nondet.timeout 5s`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGuest(cmd, opts)
		},
	}

	d := config.Default()
	cmd.Flags().StringVar(&opts.Connect, "connect", d.Host.Listen, "host address")
	cmd.Flags().StringVar(&opts.Role, "role", "leader", "execution role (leader|validator)")
	cmd.Flags().StringVar(&opts.Contract, "contract", "", "contract address")
	cmd.Flags().StringVar(&opts.Sender, "sender", "", "sender address")
	cmd.Flags().Uint64Var(&opts.Gas, "gas", 0, "initial gas (default: host.initial_gas)")
	cmd.Flags().Duration(config.KeyNondetTimeout, d.Nondet.Timeout, "bound on each leader run and vote")
	cmd.Flags().Bool(config.KeyNondetVMErrorsAgree, d.Nondet.VMErrorsAgree, "treat any two VM errors as agreeing")
	return cmd
}

func runGuest(cmd *cobra.Command, opts *GuestOptions) error {
	cfg, logger, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	f := opts.formatter(cmd)

	role, err := vm.ParseRole(opts.Role)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid role", err)
	}
	ef := entryFlags{Contract: opts.Contract, Sender: opts.Sender}
	msg, err := ef.message()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid message", err)
	}
	gas := opts.Gas
	if gas == 0 {
		gas = cfg.Host.InitialGas
	}

	m, err := newMetrics(cfg)
	if err != nil {
		return err
	}
	runner := newRunner(cfg, logger, m)

	res, err := dialGuest(cmd.Context(), opts.Connect, runner, vm.Invocation{
		Message:     msg,
		Role:        role,
		Permissions: vm.TopLevel(),
		Gas:         gas,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "guest failed", err)
	}
	if err := f.Value(resultView(res)); err != nil {
		return err
	}
	return outcomeError(res)
}

// dialGuest connects to addr and runs inv over the connection.
func dialGuest(ctx context.Context, addr string, runner *vm.Runner, inv vm.Invocation) (result.Result, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial host: %w", err)
	}
	defer conn.Close()

	inv.Conn = conn
	return runner.Run(ctx, inv)
}
