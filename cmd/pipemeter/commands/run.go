package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"

	"github.com/pipemeter/pipemeter/internal/app/runpipeline"
	"github.com/pipemeter/pipemeter/internal/app/summarize"
	"github.com/pipemeter/pipemeter/internal/printer"
	"github.com/pipemeter/pipemeter/internal/runner"
	storageio "github.com/pipemeter/pipemeter/internal/storage/io"
)

type RunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	pipelinePath   string
	maxParallelism int
	runID          string
}

// NewRunCommand returns the run command.
func NewRunCommand(rootCmd *RootCommand, app *kingpin.Application) *RunCommand {
	c := &RunCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("run", "Run a declared pipeline of instrumented steps.")
	c.Cmd.Arg("pipeline", "Path to the pipeline YAML file.").Required().ExistingFileVar(&c.pipelinePath)
	c.Cmd.Flag("max-parallelism", "Override the pipeline's fan-out limit.").IntVar(&c.maxParallelism)
	c.Cmd.Flag("run-id", "Run ID to stamp the records with (generated when empty).").StringVar(&c.runID)

	return c
}

func (c RunCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	// Load the pipeline declaration.
	absPath, err := filepath.Abs(c.pipelinePath)
	if err != nil {
		return fmt.Errorf("could not resolve pipeline path: %w", err)
	}
	repo := storageio.NewPipelineYAMLRepository(os.DirFS(filepath.Dir(absPath)))
	pipeline, err := repo.GetPipeline(ctx, filepath.Base(absPath))
	if err != nil {
		return fmt.Errorf("could not load pipeline: %w", err)
	}
	if c.maxParallelism > 0 {
		pipeline.MaxParallelism = c.maxParallelism
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

	// Create pipeline service.
	svc, err := runpipeline.NewService(runpipeline.ServiceConfig{
		Runner: stepRunner,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	// Run the pipeline.
	resp, runErr := svc.Run(ctx, runpipeline.Request{
		Pipeline: pipeline,
		RunID:    c.runID,
	})

	// Print what completed (even on failure, partial results are already in
	// the ledger) plus the run's summary.
	if resp != nil && len(resp.Records) > 0 {
		p := printer.NewTablePrinter(c.rootCmd.Stdout)
		if err := p.PrintRecords(resp.Records); err != nil {
			return fmt.Errorf("could not print records: %w", err)
		}

		summary := summarize.Summarize(resp.Records)
		fmt.Fprintln(c.rootCmd.Stdout)
		if err := p.PrintSummary(summary); err != nil {
			return fmt.Errorf("could not print summary: %w", err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("pipeline failed: %w", runErr)
	}

	return nil
}
