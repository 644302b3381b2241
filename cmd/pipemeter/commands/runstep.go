package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/pipemeter/pipemeter/internal/app/runstep"
	"github.com/pipemeter/pipemeter/internal/model"
	"github.com/pipemeter/pipemeter/internal/printer"
	"github.com/pipemeter/pipemeter/internal/runner"
	utilsenv "github.com/pipemeter/pipemeter/internal/utils/env"
)

type RunStepCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	stepName     string
	command      []string
	workingDir   string
	envSpecs     []string
	allowFailure bool
	runID        string
	format       string
}

// NewRunStepCommand returns the run-step command.
func NewRunStepCommand(rootCmd *RootCommand, app *kingpin.Application) *RunStepCommand {
	c := &RunStepCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("run-step", "Run a single external command as an instrumented step.")
	c.Cmd.Arg("name", "Step name (unique within the run, used for the step log file).").Required().StringVar(&c.stepName)
	c.Cmd.Arg("command", "Command to run (use -- before command).").Required().StringsVar(&c.command)
	c.Cmd.Flag("workdir", "Working directory for the command.").Short('w').StringVar(&c.workingDir)
	c.Cmd.Flag("env", "Environment variables (KEY=VALUE or KEY from current environment). Can be repeated.").Short('e').StringsVar(&c.envSpecs)
	c.Cmd.Flag("allow-failure", "Record a non-zero exit without failing the invocation.").BoolVar(&c.allowFailure)
	c.Cmd.Flag("run-id", "Run ID to stamp the record with.").StringVar(&c.runID)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c RunStepCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunStepCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	cmdEnv, err := utilsenv.ParseSpecs(c.envSpecs)
	if err != nil {
		return fmt.Errorf("invalid --env value: %w", err)
	}

	// Initialize ledger storage.
	ledger, closeLedger, err := newLedger(ctx, c.rootCmd.LedgerPath, logger)
	if err != nil {
		return err
	}
	defer closeLedger()

	// Initialize the instrumented step runner.
	stepRunner, err := runner.New(runner.Config{
		Ledger: ledger,
		LogDir: c.rootCmd.LogDir,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create runner: %w", err)
	}

	// Create run-step service.
	svc, err := runstep.NewService(runstep.ServiceConfig{
		Runner: stepRunner,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	// Run the step.
	record, runErr := svc.Run(ctx, runstep.Request{
		RunID: c.runID,
		Spec: model.StepSpec{
			Name:         c.stepName,
			Command:      c.command,
			WorkingDir:   c.workingDir,
			Env:          cmdEnv,
			AllowFailure: c.allowFailure,
		},
	})

	// The record exists even when the step itself failed: print it before
	// surfacing the failure.
	if record != nil {
		p := c.newPrinter()
		if err := p.PrintRecord(*record); err != nil {
			return fmt.Errorf("could not print record: %w", err)
		}
	}

	if runErr != nil {
		var stepErr model.StepFailedError
		if errors.As(runErr, &stepErr) {
			// Exit with the step's own exit code.
			closeLedger()
			os.Exit(stepErr.ExitStatus)
		}
		return fmt.Errorf("could not run step: %w", runErr)
	}

	return nil
}

func (c RunStepCommand) newPrinter() printer.Printer {
	if c.format == "json" {
		return printer.NewJSONPrinter(c.rootCmd.Stdout)
	}
	return printer.NewTablePrinter(c.rootCmd.Stdout)
}
