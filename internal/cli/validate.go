package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/cascade/internal/config"
	"github.com/roach88/cascade/internal/harness"
)

// CLI error codes (E001-E099). Scenario problems use the harness codes
// (E201-E299).
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeReadFailed  = "E002" // File could not be read
	ErrCodeUnknownFile = "E003" // Not a scenario or config file
	ErrCodeConfig      = "E004" // Config rejected by the schema
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeScenario    = "E006" // Scenario failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeTrace       = "E008" // Trace database error
)

var errUnknownFile = errors.New("not a scenario or config file")

// FileReport is the validation outcome for one file.
type FileReport struct {
	Path     string                    `json:"path"`
	Kind     string                    `json:"kind"` // "scenario" | "config"
	Valid    bool                      `json:"valid"`
	Errors   []harness.ValidationError `json:"errors,omitempty"`
	Warnings []string                  `json:"warnings,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool         `json:"valid"`
	Files []FileReport `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate scenario and config files",
		Long: `Validate scenario and config files without running anything.

.cue files are configs. YAML files with a top-level "reactors" key are
scenarios; other YAML files are configs. Scenarios are also checked for
feedback loops, which are reported as warnings.

Examples:
  cascade validate scenarios/*.yaml
  cascade validate cascade.cue --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	result := ValidationResult{Valid: true, Files: make([]FileReport, 0, len(paths))}

	for _, p := range paths {
		report, err := validateFile(p)
		if err != nil {
			code := ErrCodeReadFailed
			switch {
			case errors.Is(err, os.ErrNotExist):
				code = ErrCodeNotFound
			case errors.Is(err, errUnknownFile):
				code = ErrCodeUnknownFile
			}
			_ = formatter.Error(code, err.Error(), nil)
			return WrapExitError(ExitCommandError, "validate "+p, err)
		}
		formatter.VerboseLog("%s: %s, %d error(s)", p, report.Kind, len(report.Errors))
		if !report.Valid {
			result.Valid = false
		}
		result.Files = append(result.Files, report)
	}

	if err := formatter.Success(result, func(w io.Writer) { writeValidation(w, result) }); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

// validateFile classifies and checks one file. The error is only for
// files that cannot be read or classified.
func validateFile(path string) (FileReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileReport{}, err
	}
	kind, err := classify(path, data)
	if err != nil {
		return FileReport{}, err
	}

	report := FileReport{Path: path, Kind: kind, Valid: true}
	if kind == "config" {
		if _, err := config.Load(path); err != nil {
			report.Valid = false
			report.Errors = []harness.ValidationError{configError(err)}
		}
		return report, nil
	}

	sc, err := harness.ParseScenario(data)
	var invalid *harness.InvalidScenarioError
	switch {
	case errors.As(err, &invalid):
		report.Valid = false
		report.Errors = invalid.Errors
	case err != nil:
		report.Valid = false
		report.Errors = []harness.ValidationError{{Field: "yaml", Message: err.Error(), Code: ErrCodeGeneric}}
	default:
		for _, w := range harness.AnalyzeCycles(sc) {
			report.Warnings = append(report.Warnings, w.Message)
		}
	}
	return report, nil
}

func classify(path string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return "config", nil
	case ".yaml", ".yml":
		var top map[string]yaml.Node
		if err := yaml.Unmarshal(data, &top); err != nil {
			// Let the scenario parser report the syntax error.
			return "scenario", nil
		}
		if _, ok := top["reactors"]; ok {
			return "scenario", nil
		}
		return "config", nil
	default:
		return "", fmt.Errorf("%s: %w (expected .cue, .yaml or .yml)", path, errUnknownFile)
	}
}

func configError(err error) harness.ValidationError {
	var cerr *config.Error
	if errors.As(err, &cerr) {
		return harness.ValidationError{Field: cerr.Field, Message: cerr.Message, Code: ErrCodeConfig}
	}
	return harness.ValidationError{Field: "config", Message: err.Error(), Code: ErrCodeConfig}
}

func writeValidation(w io.Writer, result ValidationResult) {
	for _, f := range result.Files {
		mark := "✓"
		if !f.Valid {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s (%s)\n", mark, f.Path, f.Kind)
		for _, e := range f.Errors {
			fmt.Fprintf(w, "    %s\n", e.Error())
		}
		for _, warn := range f.Warnings {
			fmt.Fprintf(w, "    warning: %s\n", warn)
		}
	}
	if result.Valid {
		fmt.Fprintln(w, "All files valid")
	} else {
		fmt.Fprintln(w, "Validation failed")
	}
}
