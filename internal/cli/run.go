package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cascade/internal/config"
	"github.com/roach88/cascade/internal/harness"
	"github.com/roach88/cascade/internal/logging"
	"github.com/roach88/cascade/internal/trace"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config        string
	Database      string
	Label         string
	Deterministic bool
	Timeout       time.Duration
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	*harness.Result
	RunID string `json:"run_id,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run a scenario on the worker pool",
		Long: `Run a scenario's topology on the pump and report what it produced.

The runtime config comes from --config when given, otherwise from the
scenario's own config block. With --db every trace event is stored in a
SQLite database for later inspection with "cascade trace".

Ctrl-C stops the topology and reports what has happened so far.

Examples:
  cascade run scenarios/pipeline.yaml
  cascade run scenarios/pipeline.yaml --config cascade.cue --db trace.db
  cascade run scenarios/pipeline.yaml --deterministic --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "runtime config file (.cue, .yaml)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the trace into this SQLite database")
	cmd.Flags().StringVar(&opts.Label, "label", "", "label of the recorded run (default: scenario name)")
	cmd.Flags().BoolVar(&opts.Deterministic, "deterministic", false, "crank from one goroutine instead of the pump")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "give up waiting for the topology to settle")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	level := logging.Info
	if opts.Verbose {
		level = logging.Debug
	}
	logger := logging.NewText(cmd.ErrOrStderr(), level)

	sc, err := harness.LoadScenario(path)
	if err != nil {
		return scenarioLoadError(formatter, path, err)
	}

	var cfg config.Config
	if opts.Config != "" {
		cfg, err = config.Load(opts.Config)
	} else {
		cfg, err = sc.RuntimeConfig()
	}
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "load config", err)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	runOpts := []harness.Option{harness.WithConfig(cfg), harness.WithLogger(logger)}
	if !opts.Deterministic {
		runOpts = append(runOpts, harness.WithMode(harness.Pumped))
	}

	out := RunResult{}
	if opts.Database != "" {
		st, err := trace.Open(opts.Database)
		if err != nil {
			_ = formatter.Error(ErrCodeTrace, err.Error(), nil)
			return WrapExitError(ExitCommandError, "open trace database", err)
		}
		defer func() {
			if cerr := st.Close(); cerr != nil {
				logger.Log(logging.Error, "close trace database: {}", cerr)
			}
		}()

		label := opts.Label
		if label == "" {
			label = sc.Name
		}
		rendered, err := cfg.YAML()
		if err != nil {
			return WrapExitError(ExitCommandError, "render config", err)
		}
		run, err := st.BeginRun(ctx, label, string(rendered))
		if err != nil {
			_ = formatter.Error(ErrCodeTrace, err.Error(), nil)
			return WrapExitError(ExitCommandError, "begin trace run", err)
		}
		out.RunID = run.ID()
		runOpts = append(runOpts, harness.WithRecorder(run))
		formatter.VerboseLog("recording run %s into %s", run.ID(), opts.Database)
	}

	logger.Log(logging.Info, "running scenario {} ({} reactors)", sc.Name, len(sc.Reactors))
	result, err := harness.Run(ctx, sc, runOpts...)
	if err != nil {
		_ = formatter.Error(ErrCodeScenario, err.Error(), nil)
		return WrapExitError(ExitCommandError, "run scenario", err)
	}
	out.Result = result

	if err := formatter.Success(out, func(w io.Writer) {
		_, _ = w.Write(harness.Render(result))
		if out.RunID != "" {
			fmt.Fprintf(w, "run: %s\n", out.RunID)
		}
	}); err != nil {
		return err
	}
	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", sc.Name))
	}
	return nil
}

// scenarioLoadError reports a scenario that could not be loaded.
func scenarioLoadError(formatter *OutputFormatter, path string, err error) error {
	var invalid *harness.InvalidScenarioError
	switch {
	case errors.Is(err, os.ErrNotExist):
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "scenario not found", err)
	case errors.As(err, &invalid):
		_ = formatter.Error(ErrCodeScenario, fmt.Sprintf("invalid scenario %s", path), invalid.Errors)
		return WrapExitError(ExitFailure, "invalid scenario", err)
	default:
		_ = formatter.Error(ErrCodeReadFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "load scenario", err)
	}
}
