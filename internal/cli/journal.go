package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/config"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/store"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	TxID string
	Node string
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List journaled transactions or the entries of one",
		Long: `Without --tx, list the transactions recorded in the database.
With --tx, list that transaction's entries in append order.

Examples:
  ndvm journal --host.db ndvm.db
  ndvm journal --tx t1 --node validator --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.TxID, "tx", "", "transaction id")
	cmd.Flags().StringVar(&opts.Node, "node", "", "only entries of this node")
	cmd.Flags().String(config.KeyHostDB, config.Default().Host.DB, "SQLite database path")
	return cmd
}

func runJournal(cmd *cobra.Command, opts *JournalOptions) error {
	cfg, _, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	f := opts.formatter(cmd)

	st, err := openStore(cfg.Host.DB, false)
	if err != nil {
		_ = f.Error(ErrCodeNotFound, err.Error(), nil)
		return err
	}
	defer st.Close()

	if opts.TxID == "" {
		txs, err := st.Transactions(cmd.Context())
		if err != nil {
			_ = f.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to list transactions", err)
		}
		if f.Format == "json" {
			arr := make(calldata.Array, len(txs))
			for i, tx := range txs {
				arr[i] = calldata.Str(tx)
			}
			return f.Value(arr)
		}
		if len(txs) == 0 {
			fmt.Fprintln(f.Writer, "No transactions found in database.")
			return nil
		}
		fmt.Fprintln(f.Writer, strings.Join(txs, "\n"))
		return nil
	}

	entries, err := st.Entries(cmd.Context(), opts.TxID)
	if err != nil {
		_ = f.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	if opts.Node != "" {
		entries = filterNode(entries, opts.Node)
	}
	if len(entries) == 0 {
		msg := fmt.Sprintf("no entries for transaction %s", opts.TxID)
		_ = f.Error(ErrCodeNotFound, msg, nil)
		return NewExitError(ExitFailure, msg)
	}

	if f.Format == "json" {
		arr := make(calldata.Array, len(entries))
		for i, e := range entries {
			arr[i] = entryView(e)
		}
		return f.Value(arr)
	}
	return writeEntries(f, entries)
}

func filterNode(entries []store.Entry, node string) []store.Entry {
	var out []store.Entry
	for _, e := range entries {
		if e.Node == node {
			out = append(out, e)
		}
	}
	return out
}

// entryView renders a journal entry in the calldata JSON view.
func entryView(e store.Entry) calldata.Map {
	m := calldata.Map{
		"seq":     calldata.NewInt(e.Seq),
		"node":    calldata.Str(e.Node),
		"kind":    calldata.Str(string(e.Kind)),
		"call_no": calldata.NewUint(uint64(e.CallNo)),
	}
	if e.Result != nil {
		m["result"] = resultView(e.Result)
	}
	if e.Detail != nil {
		m["detail"] = e.Detail
	}
	return m
}

func writeEntries(f *OutputFormatter, entries []store.Entry) error {
	w := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tNODE\tKIND\tCALL\tRESULT")
	for _, e := range entries {
		res := "-"
		if e.Result != nil {
			res = result.String(e.Result)
		} else if e.Detail != nil {
			res = calldata.Format(e.Detail)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", e.Seq, e.Node, e.Kind, e.CallNo, res)
	}
	return w.Flush()
}
