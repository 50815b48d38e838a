package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/fhcypma/ydag/internal/app"
)

// Version is stamped by the build; "dev" otherwise.
var Version = "dev"

// ExitError is a custom error type that includes a specific exit code.
// Definition and usage problems exit 2, task failures exit 1.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// NewRootCmd constructs the ydag command tree. Task and summary output goes
// to outW, logs and errors to errW.
func NewRootCmd(outW, errW io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "ydag",
		Short: "Run task pipelines as dependency graphs",
		Long: "ydag executes HCL-defined task pipelines as dependency graphs:\n" +
			"independent tasks run concurrently, failures propagate to dependents,\n" +
			"and every run is recorded.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(outW)
	root.SetErr(errW)

	root.PersistentFlags().String("config", "", "path to the tool config file")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, or error")
	root.PersistentFlags().String("log-format", "", "log format: text or json")

	root.AddCommand(newRunCmd(outW, errW))
	root.AddCommand(newValidateCmd(outW, errW))
	root.AddCommand(newHistoryCmd(outW, errW))
	root.AddCommand(newVersionCmd())
	return root
}

// appConfig assembles and validates the app configuration shared by all
// commands from the persistent flags and path arguments.
func appConfig(cmd *cobra.Command, paths []string) (*app.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	logLevel, _ := cmd.Flags().GetString("log-level")
	logFormat, _ := cmd.Flags().GetString("log-format")

	cfg, err := app.NewConfig(app.Config{
		PipelinePaths: paths,
		ConfigPath:    configPath,
		LogLevel:      logLevel,
		LogFormat:     logFormat,
	})
	if err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}
	return cfg, nil
}

// buildApp constructs the App, converting its startup panic on a broken tool
// configuration into a clean exit error.
func buildApp(outW, errW io.Writer, cfg *app.Config) (a *app.App, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &ExitError{Code: 2, Message: fmt.Sprintf("critical startup error: %v", rec)}
		}
	}()
	return app.NewApp(outW, errW, cfg), nil
}

// newRunCmd executes a pipeline.
func newRunCmd(outW, errW io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <path>...",
		Short: "Execute the pipeline at the given paths",
		Long: "Execute the pipeline formed by the given .hcl files and directories.\n" +
			"The exit code is 0 when every task ends SUCCESS or SKIPPED, 1 when any\n" +
			"task fails, and 2 when the pipeline cannot be loaded at all.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appConfig(cmd, args)
			if err != nil {
				return err
			}
			cfg.Concurrency, _ = cmd.Flags().GetInt("concurrency")
			cfg.Skip, _ = cmd.Flags().GetStringSlice("skip")
			cfg.NoHistory, _ = cmd.Flags().GetBool("no-history")
			if cfg.Concurrency < 0 {
				return &ExitError{Code: 2, Message: fmt.Sprintf("concurrency must be positive, got %d", cfg.Concurrency)}
			}

			a, err := buildApp(outW, errW, cfg)
			if err != nil {
				return err
			}
			if err := a.Run(cmd.Context()); err != nil {
				if errors.Is(err, app.ErrRunFailed) {
					return &ExitError{Code: 1, Message: err.Error()}
				}
				return &ExitError{Code: 2, Message: err.Error()}
			}
			return nil
		},
	}
	cmd.Flags().IntP("concurrency", "c", 0, "worker limit, overriding the pipeline and tool config")
	cmd.Flags().StringSlice("skip", nil, "task names to mark skipped before the run starts")
	cmd.Flags().Bool("no-history", false, "do not record this run")
	return cmd
}

// newValidateCmd checks pipelines without executing them.
func newValidateCmd(outW, errW io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>...",
		Short: "Check each given pipeline without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appConfig(cmd, args)
			if err != nil {
				return err
			}
			a, err := buildApp(outW, errW, cfg)
			if err != nil {
				return err
			}
			if err := a.Validate(cmd.Context()); err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}
			return nil
		},
	}
}

// newHistoryCmd lists recorded runs.
func newHistoryCmd(outW, errW io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, or the tasks of one run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")
			runID, _ := cmd.Flags().GetString("run")
			limit, _ := cmd.Flags().GetInt("limit")

			// History has no pipeline to point at; bypass the path check.
			cfg := &app.Config{
				ConfigPath: configPath,
				LogLevel:   logLevel,
				LogFormat:  logFormat,
			}
			a, err := buildApp(outW, errW, cfg)
			if err != nil {
				return err
			}
			if err := a.History(cmd.Context(), runID, limit); err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}
			return nil
		},
	}
	cmd.Flags().String("run", "", "show the tasks of this run id instead of the run list")
	cmd.Flags().Int("limit", 0, "number of runs to list, overriding the tool config")
	return cmd
}

// newVersionCmd prints version information.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ydag %s\n", Version)
		},
	}
}
