package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/formwalk/internal/compiler"
	"github.com/roach88/formwalk/internal/ir"
)

// FormReport is the validation outcome for one form.
type FormReport struct {
	Path    string                     `json:"path"`
	ID      string                     `json:"id,omitempty"`
	Version string                     `json:"version,omitempty"`
	Hash    string                     `json:"hash,omitempty"`
	Valid   bool                       `json:"valid"`
	Errors  []compiler.ValidationError `json:"errors,omitempty"`
}

// ValidationResult holds the reports of every form checked.
type ValidationResult struct {
	Valid bool         `json:"valid"`
	Forms []FormReport `json:"forms"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <form.cue|form-dir>...",
		Short: "Compile and validate form definitions",
		Long: `Compile CUE form definitions and check them for design errors:
duplicate or invalid names, unparsable or dangling expressions, selects
without choices and repeats nested inside field-lists.

A directory argument is compiled as one CUE package.

Exit codes:
  0 - All forms valid
  1 - One or more forms invalid
  2 - A form could not be read`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	result := ValidationResult{Valid: true, Forms: make([]FormReport, 0, len(paths))}
	for _, path := range paths {
		report, err := validateForm(path)
		if err != nil {
			if f.JSON() {
				_ = f.Error(ErrCodeNotFound, err.Error(), map[string]string{"path": path})
			}
			return WrapExitError(ExitCommandError, "failed to read form", err)
		}
		f.VerboseLog("validated %s (%d error(s))", path, len(report.Errors))
		result.Forms = append(result.Forms, report)
		result.Valid = result.Valid && report.Valid
	}

	if f.JSON() {
		if result.Valid {
			if err := f.Success(result); err != nil {
				return err
			}
		} else if err := f.Error(ErrCodeInvalid, "form validation failed", result); err != nil {
			return err
		}
	} else {
		printValidation(f, result)
	}

	if !result.Valid {
		return NewExitError(ExitFailure, "form validation failed")
	}
	return nil
}

// validateForm compiles one form. Compile errors become a failed report;
// only an unreadable path is an error.
func validateForm(path string) (FormReport, error) {
	report := FormReport{Path: path}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return report, fmt.Errorf("form not found: %s", path)
		}
		return report, err
	}

	var def *ir.FormDef
	if info.IsDir() {
		def, err = compiler.LoadDir(path)
	} else {
		def, _, err = compiler.LoadFile(path)
	}
	if err != nil {
		report.Errors = []compiler.ValidationError{{Field: "form", Message: err.Error(), Code: "compile"}}
		return report, nil
	}

	report.ID, report.Version = def.ID, def.Version
	report.Errors = compiler.Validate(def)
	report.Valid = len(report.Errors) == 0
	if report.Valid {
		if report.Hash, err = ir.FormHash(def); err != nil {
			return report, err
		}
	}
	return report, nil
}

func printValidation(f *OutputFormatter, result ValidationResult) {
	w := f.Writer
	for _, r := range result.Forms {
		if r.Valid {
			fmt.Fprintf(w, "%s %s (%s v%s)\n", passMark(), r.Path, r.ID, r.Version)
			if f.Verbose {
				fmt.Fprintf(w, "  %s\n", faint(r.Hash))
			}
			continue
		}
		fmt.Fprintf(w, "%s %s\n", failMark(), r.Path)
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  %s\n", red(e.Error()))
		}
	}
}
