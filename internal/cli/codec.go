package cli

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ndvm/internal/calldata"
)

// readInput returns arg, or standard input when arg is "-".
func readInput(cmd *cobra.Command, arg string) ([]byte, error) {
	if arg != "-" {
		return []byte(arg), nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return b, nil
}

// NewEncodeCommand creates the encode command.
func NewEncodeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "encode <json|->",
		Short: "Encode a JSON view value as calldata hex",
		Long: `Encode a value written in the calldata JSON view.

Bytes are written {"$bytes": "<hex>"} and addresses {"$address": "0x<hex>"}.

Examples:
  ndvm encode 42                        # d102
  ndvm encode '{"b": 1, "a": [true]}'
  echo '"hello"' | ndvm encode -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			in, err := readInput(cmd, args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read input", err)
			}
			v, err := calldata.ParseJSON(in)
			if err != nil {
				_ = f.Error(ErrCodeInvalidInput, err.Error(), nil)
				return WrapExitError(ExitCommandError, "invalid value", err)
			}
			b, err := calldata.Encode(v)
			if err != nil {
				_ = f.Error(ErrCodeInvalidInput, err.Error(), nil)
				return WrapExitError(ExitCommandError, "failed to encode", err)
			}
			return f.Value(calldata.Str(hex.EncodeToString(b)))
		},
	}
}

// NewDecodeCommand creates the decode command.
func NewDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "decode <hex|->",
		Short: "Decode calldata hex into the JSON view",
		Long: `Decode canonical calldata and print its JSON view.

Examples:
  ndvm decode d102          # 42
  ndvm decode 0xd102 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			in, err := readInput(cmd, args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read input", err)
			}
			raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(string(in)), "0x"))
			if err != nil {
				_ = f.Error(ErrCodeInvalidInput, err.Error(), nil)
				return WrapExitError(ExitCommandError, "invalid hex", err)
			}
			v, err := calldata.Decode(raw)
			if err != nil {
				_ = f.Error(ErrCodeInvalidInput, err.Error(), nil)
				return WrapExitError(ExitCommandError, "invalid calldata", err)
			}
			if rootOpts.Format == "json" {
				return f.Value(v)
			}
			out, err := calldata.MarshalJSON(v)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
