package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/ndvm/internal/config"
)

// RootOptions holds global flags for all commands, and the configuration
// and logger resolved from them before a command runs.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	Config *config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the ndvm CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ndvm",
		Short: "ndvm - non-deterministic contract execution",
		Long: `Run contract programs whose nondet blocks are executed by a leader
and re-checked by validators under an equivalence principle.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "YAML configuration file")

	cmd.AddCommand(NewEncodeCommand(opts))
	cmd.AddCommand(NewDecodeCommand(opts))
	cmd.AddCommand(NewInvokeCommand(opts))
	cmd.AddCommand(NewHostCommand(opts))
	cmd.AddCommand(NewGuestCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewJournalCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

// load resolves the configuration from the config file, the environment
// and the flags of cmd, then builds the logger. --verbose forces debug
// logging.
func (o *RootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath, cmd.Flags())
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	o.Config = cfg
	o.Logger = cfg.Log.NewLogger(cmd.ErrOrStderr())
	return nil
}

// setup returns the configuration and logger, loading them from cmd when
// the root pre-run did not, as when a subcommand is executed on its own.
func (o *RootOptions) setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	if o.Config == nil {
		if err := o.load(cmd); err != nil {
			return nil, nil, err
		}
	}
	return o.Config, o.Logger, nil
}

// formatter builds the output formatter of cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
