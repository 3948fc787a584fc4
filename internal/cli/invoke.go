package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/config"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	entryFlags
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <program>",
		Short: "Execute a program in-process against the database",
		Long: `Execute one registered program with a guest running in-process.

Storage writes, messages and events are committed to the database when the
program returns. Validators read leader results journaled under the same
--tx by an earlier leader invocation.

Exit codes:
  0 - The program returned
  1 - The program rolled back or failed
  2 - Command error

Examples:
  ndvm invoke echo --args 42
  ndvm invoke nondet.strict --args '{"program": "add", "args": {"a": 1, "b": 2}}' --tx t1
  ndvm invoke nondet.strict --args '{"program": "add", "args": {"a": 1, "b": 2}}' --tx t1 --role validator`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvoke(cmd, opts, args[0])
		},
	}

	addEntryFlags(cmd, &opts.entryFlags)
	addHostFlags(cmd)
	return cmd
}

// addEntryFlags registers the transaction flags.
func addEntryFlags(cmd *cobra.Command, f *entryFlags) {
	cmd.Flags().StringVar(&f.Args, "args", "null", "program arguments in the calldata JSON view")
	cmd.Flags().StringVar(&f.TxID, "tx", "", "transaction id (default: a new UUIDv7)")
	cmd.Flags().StringVar(&f.Node, "node", "", "node name in the journal (default: the role)")
	cmd.Flags().StringVar(&f.Role, "role", "leader", "execution role (leader|validator)")
	cmd.Flags().StringVar(&f.Contract, "contract", "", "contract address")
	cmd.Flags().StringVar(&f.Sender, "sender", "", "sender address")
	cmd.Flags().Uint64Var(&f.Gas, "gas", 0, "initial gas (default: host.initial_gas)")
}

// addHostFlags registers the host configuration flags. Their names are the
// configuration keys they override.
func addHostFlags(cmd *cobra.Command) {
	d := config.Default()
	cmd.Flags().String(config.KeyHostDB, d.Host.DB, "SQLite database path")
	cmd.Flags().String(config.KeyHostWorld, d.Host.World, "CUE world fixture")
	cmd.Flags().Duration(config.KeyNondetTimeout, d.Nondet.Timeout, "bound on each leader run and vote")
	cmd.Flags().Bool(config.KeyNondetVMErrorsAgree, d.Nondet.VMErrorsAgree, "treat any two VM errors as agreeing")
}

func runInvoke(cmd *cobra.Command, opts *InvokeOptions, program string) error {
	cfg, logger, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	f := opts.formatter(cmd)

	tx, err := opts.tx(program)
	if err != nil {
		_ = f.Error(ErrCodeInvalidInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid transaction", err)
	}

	st, err := openStore(cfg.Host.DB, true)
	if err != nil {
		return err
	}
	defer st.Close()

	m, err := newMetrics(cfg)
	if err != nil {
		return err
	}
	h, err := newHost(cfg, logger, m, st, st, newRunner(cfg, logger, m))
	if err != nil {
		return err
	}

	f.VerboseLog("invoking %s as %s (tx %s)", program, tx.Role, tx.ID)
	out, err := h.Invoke(cmd.Context(), tx)
	if err != nil {
		return WrapExitError(ExitFailure, "invocation failed", err)
	}

	view := resultView(out.Result)
	view["tx"] = calldata.Str(out.Tx)
	view["node"] = calldata.Str(out.Node)
	view["gas"] = calldata.NewUint(out.Gas)
	if err := f.Value(view); err != nil {
		return err
	}
	return outcomeError(out.Result)
}
