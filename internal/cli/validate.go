package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
	"github.com/spf13/cobra"

	"github.com/roach88/ndvm/internal/harness"
	"github.com/roach88/ndvm/internal/host"
)

// ValidationError is one file that failed to load.
type ValidationError struct {
	File    string `json:"file"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Files  int               `json:"files"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>...",
		Short: "Validate world fixtures and scenarios without running them",
		Long: `Check CUE world fixtures (*.cue) against the world schema and YAML
scenarios (*.yaml, *.yml) for structure, expectations and assertions.
Directories are searched recursively.

Examples:
  ndvm validate world.cue
  ndvm validate ./scenarios --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd, args)
		},
	}
}

func runValidate(opts *RootOptions, cmd *cobra.Command, paths []string) error {
	f := opts.formatter(cmd)

	var files []string
	for _, p := range paths {
		found, err := validatableFiles(p)
		if err != nil {
			_ = f.Error(ErrCodeNotFound, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to read path", err)
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		msg := "no .cue, .yaml or .yml files found"
		_ = f.Error(ErrCodeNotFound, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	res := ValidationResult{Valid: true, Files: len(files)}
	for _, file := range files {
		f.VerboseLog("validating %s", file)
		if err := validateFile(file); err != nil {
			res.Valid = false
			res.Errors = append(res.Errors, ValidationError{
				File:    file,
				Message: err.Error(),
				Line:    errorLine(err),
			})
		}
	}

	if f.Format == "json" {
		if res.Valid {
			return f.Success(res)
		}
		_ = f.Error(ErrCodeInvalidInput, fmt.Sprintf("%d file(s) invalid", len(res.Errors)), res)
		return NewExitError(ExitFailure, "validation failed")
	}

	w := f.Writer
	if res.Valid {
		fmt.Fprintf(w, "✓ %d file(s) valid\n", res.Files)
		return nil
	}
	for _, e := range res.Errors {
		if e.Line > 0 {
			fmt.Fprintf(w, "✗ %s:%d: %s\n", e.File, e.Line, e.Message)
		} else {
			fmt.Fprintf(w, "✗ %s: %s\n", e.File, e.Message)
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d of %d file(s) invalid", len(res.Errors), res.Files))
}

func validatableFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".cue", ".yaml", ".yml":
			files = append(files, p)
		}
		return nil
	})
	return files, err
}

func validateFile(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		_, err := host.LoadWorld(path)
		return err
	case ".yaml", ".yml":
		_, err := harness.LoadScenario(path)
		return err
	default:
		return fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

// errorLine returns the first source line a CUE error points at.
func errorLine(err error) int {
	for _, pos := range cueerrors.Positions(err) {
		if pos.Line() > 0 {
			return pos.Line()
		}
	}
	return 0
}
