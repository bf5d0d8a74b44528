package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tordrt/docschema"
	"github.com/tordrt/docschema/internal/config"
	"github.com/tordrt/docschema/internal/formatter"
	"github.com/tordrt/docschema/internal/logging"
	"github.com/tordrt/docschema/internal/metrics"
	"github.com/tordrt/docschema/internal/provision"
)

// Exit codes
const (
	exitSuccess    = 0
	exitConfig     = 1
	exitDatabase   = 2
	exitNetwork    = 3
	exitInput      = 4
	exitPermission = 5
	exitInternal   = 10
)

var (
	green = color.New(color.FgGreen)
	red   = color.New(color.FgRed)
)

// cliError carries the exit code of failures detected before provisioning
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docschema",
		Short: "Create the collections and indexes a database needs",
		Long: `docschema ensures every collection and index of a plan exists in a MongoDB,
PostgreSQL, MySQL or SQLite database. Missing objects are created, matching
ones are left alone and conflicting index definitions are reported without
being changed. Running it again is always safe.

Without --plan the chat application plan is applied: collections users,
conversations and chat_messages with their four indexes.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.NoArgs(cmd, args); err != nil {
				return &cliError{code: exitInput, err: err}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	config.SetupFlags(cmd.Flags())
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &cliError{code: exitInput, err: err}
	})

	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(viper.New(), cmd.Flags())
	if err != nil {
		return &cliError{code: exitConfig, err: err}
	}
	if cfg.NoColor {
		color.NoColor = true
	}

	logger, _, err := logging.New(logging.Config{
		Level:    cfg.LogLevel,
		Encoding: cfg.LogEncoding,
		Writer:   cmd.ErrOrStderr(),
	})
	if err != nil {
		return &cliError{code: exitConfig, err: err}
	}
	defer func() { _ = logger.Sync() }()

	if cfg.ConfigFileUsed != "" {
		logger.Debug("using config file", zap.String("path", cfg.ConfigFileUsed))
	}

	plan := docschema.DefaultPlan()
	if cfg.PlanFile != "" {
		plan, err = docschema.LoadPlan(cfg.PlanFile)
		if err != nil {
			if errors.Is(err, docschema.ErrInvalidPlan) {
				return &cliError{code: exitInput, err: err}
			}
			return &cliError{code: exitConfig, err: err}
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	recorder := metrics.NewRecorder()
	report, applyErr := docschema.Apply(ctx, cfg.URL, plan, &docschema.Options{
		Database:       cfg.Database,
		DryRun:         cfg.DryRun,
		ConnectTimeout: cfg.ConnectTimeout,
		Logger:         logger,
		Recorder:       recorder,
	})

	if cfg.MetricsTextfile != "" {
		if err := recorder.WriteTextfile(cfg.MetricsTextfile); err != nil {
			logger.Warn("failed to write metrics", zap.Error(err))
		}
	}

	if report != nil {
		if err := writeReport(cmd.OutOrStdout(), cfg, report); err != nil {
			if applyErr == nil {
				return &cliError{code: exitConfig, err: err}
			}
			// the apply error decides the exit code
			logger.Error("failed to write report", zap.Error(err))
		}
	}

	if applyErr != nil {
		return applyErr
	}

	printSummary(cmd.ErrOrStderr(), report)
	return nil
}

func writeReport(w io.Writer, cfg *config.Config, report *provision.Report) error {
	if cfg.Output != "" {
		return formatter.NewFileFormatter(cfg.Output, cfg.Format).Write(report)
	}

	f, err := formatter.New(cfg.Format, w)
	if err != nil {
		return err
	}
	if err := f.Format(report); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	return nil
}

func printSummary(w io.Writer, report *provision.Report) {
	if report.DryRun {
		_, _ = green.Fprintf(w, "✓ Dry run of database %q: %d to create, %d already present\n",
			report.Database, report.Planned(), report.Present())
		return
	}
	_, _ = green.Fprintf(w, "✓ Database %q provisioned: %d created, %d already present\n",
		report.Database, report.Created(), report.Present())
}

// exitCode maps an error to the process exit status
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}

	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	if errors.Is(err, docschema.ErrUnsupportedURL) {
		return exitConfig
	}

	switch docschema.KindOf(err) {
	case docschema.KindConnectivity:
		return exitNetwork
	case docschema.KindAuthorization:
		return exitPermission
	case docschema.KindConflict, docschema.KindDataConflict:
		return exitDatabase
	case docschema.KindInvalid:
		return exitInput
	default:
		return exitInternal
	}
}

func execute(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.Execute(); err != nil {
		_, _ = red.Fprintf(stderr, "✗ %v\n", err)
		return exitCode(err)
	}
	return exitSuccess
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}
