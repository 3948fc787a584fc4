package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/host"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/store"
	"github.com/roach88/ndvm/internal/vm"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	entryFlags
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <program>",
		Short: "Re-validate a journaled leader execution",
		Long: `Execute <program> as a validator against the leader results journaled
under --tx, and report whether every vote agrees.

Replay reads the database but never writes to it: storage starts empty and
votes are kept in memory.

Exit codes:
  0 - Every vote agreed
  1 - A vote disagreed or the program did not return
  2 - Command error (database not found, etc.)

Examples:
  ndvm replay nondet.strict --tx t1 --args '{"program": "echo", "args": 42}'
  ndvm replay nondet.web --tx t1 --args '{"url": "https://example.com"}' --host.world world.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, opts, args[0])
		},
	}

	addEntryFlags(cmd, &opts.entryFlags)
	addHostFlags(cmd)
	_ = cmd.MarkFlagRequired("tx")
	cmd.Flags().Lookup("role").Hidden = true
	return cmd
}

// replayJournal reads leader results from the recorded journal and keeps
// everything appended during the replay in memory.
type replayJournal struct {
	recorded host.Journal
	*store.Memory
}

func (j replayJournal) LeaderResult(ctx context.Context, tx string, callNo uint32) (result.Result, bool, error) {
	return j.recorded.LeaderResult(ctx, tx, callNo)
}

func runReplay(cmd *cobra.Command, opts *ReplayOptions, program string) error {
	cfg, logger, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	f := opts.formatter(cmd)

	opts.Role = vm.RoleValidator.String()
	if opts.Node == "" {
		opts.Node = "replay"
	}
	tx, err := opts.tx(program)
	if err != nil {
		_ = f.Error(ErrCodeInvalidInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid transaction", err)
	}

	st, err := openStore(cfg.Host.DB, false)
	if err != nil {
		_ = f.Error(ErrCodeNotFound, err.Error(), nil)
		return err
	}
	defer st.Close()

	m, err := newMetrics(cfg)
	if err != nil {
		return err
	}
	journal := replayJournal{recorded: st, Memory: store.NewMemory()}
	h, err := newHost(cfg, logger, m, store.NewMemory(), journal, newRunner(cfg, logger, m))
	if err != nil {
		return err
	}

	out, err := replay(cmd.Context(), h, tx)
	if err != nil {
		_ = f.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	view := calldata.Map{
		"tx":      calldata.Str(tx.ID),
		"votes":   calldata.NewUint(uint64(out.Votes)),
		"agreed":  calldata.Bool(out.Disagreed == 0),
		"outcome": resultView(out.Result),
	}
	if err := f.Value(view); err != nil {
		return err
	}
	if out.Disagreed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d votes disagreed", out.Disagreed, out.Votes))
	}
	return outcomeError(out.Result)
}

// replayOutcome summarises a validator replay.
type replayOutcome struct {
	Result    result.Result
	Votes     int
	Disagreed int
}

func replay(ctx context.Context, h *host.Host, tx host.Tx) (replayOutcome, error) {
	out, err := h.Invoke(ctx, tx)
	if err != nil {
		return replayOutcome{}, err
	}
	entries, err := h.Journal().Entries(ctx, tx.ID)
	if err != nil {
		return replayOutcome{}, err
	}

	ro := replayOutcome{Result: out.Result}
	for _, e := range entries {
		if e.Node != out.Node || e.Kind != store.KindVote {
			continue
		}
		ro.Votes++
		if ret, ok := e.Result.(result.Return); !ok || !calldata.Equal(ret.Value, calldata.Bool(true)) {
			ro.Disagreed++
		}
	}
	return ro, nil
}
