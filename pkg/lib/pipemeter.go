package lib

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pipemeter/pipemeter/internal/app/runpipeline"
	"github.com/pipemeter/pipemeter/internal/app/runstep"
	"github.com/pipemeter/pipemeter/internal/app/summarize"
	"github.com/pipemeter/pipemeter/internal/conventions"
	"github.com/pipemeter/pipemeter/internal/log"
	"github.com/pipemeter/pipemeter/internal/runner"
	"github.com/pipemeter/pipemeter/internal/sampler"
	"github.com/pipemeter/pipemeter/internal/storage/sqlite"
)

// Config configures the SDK client.
//
// All fields are optional. An empty Config{} uses ~/.pipemeter/pipemeter.db
// for the ledger and ~/.pipemeter/logs for step output.
type Config struct {
	// DBPath is the SQLite ledger path.
	// Default: ~/.pipemeter/pipemeter.db.
	DBPath string

	// DataDir is the base directory for pipemeter data.
	// Default: ~/.pipemeter.
	DataDir string

	// LogDir is the directory for per-step output log files.
	// Default: <DataDir>/logs.
	LogDir string

	// SampleInterval is the resource sampling period. Finer granularity
	// trades overhead for accuracy. Default: 1s.
	SampleInterval time.Duration

	// Logger receives structured log output from the SDK.
	// Default: noop (silent). See the log sub-package for the interface.
	Logger log.Logger
}

func (c *Config) defaults() error {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("could not get user home dir: %w", err)
		}
		c.DataDir = filepath.Join(home, conventions.DefaultDataDir)
	}

	if c.DBPath == "" {
		c.DBPath = conventions.DBPath(c.DataDir)
	}

	if c.LogDir == "" {
		c.LogDir = conventions.LogDir(c.DataDir)
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Client is the main SDK entry point for running instrumented steps.
//
// Create a Client with [New] and release its resources with [Client.Close].
// A Client is safe for concurrent use: parallel RunStep calls append to the
// same ledger without corrupting it.
type Client struct {
	ledger       *sqlite.Ledger
	runStepSvc   *runstep.Service
	pipelineSvc  *runpipeline.Service
	summarizeSvc *summarize.Service
}

// New creates a new SDK client, initializing the ledger (and its schema) at
// the configured path.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ledger, err := sqlite.NewLedger(ctx, sqlite.LedgerConfig{
		DBPath: cfg.DBPath,
		Logger: cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create ledger: %w", err)
	}

	procSampler, err := sampler.NewProcSampler(sampler.ProcSamplerConfig{
		Interval: cfg.SampleInterval,
		Logger:   cfg.Logger,
	})
	if err != nil {
		ledger.Close()
		return nil, fmt.Errorf("could not create sampler: %w", err)
	}

	stepRunner, err := runner.New(runner.Config{
		Ledger:  ledger,
		LogDir:  cfg.LogDir,
		Sampler: procSampler,
		Logger:  cfg.Logger,
	})
	if err != nil {
		ledger.Close()
		return nil, fmt.Errorf("could not create runner: %w", err)
	}

	runStepSvc, err := runstep.NewService(runstep.ServiceConfig{Runner: stepRunner, Logger: cfg.Logger})
	if err != nil {
		ledger.Close()
		return nil, fmt.Errorf("could not create run-step service: %w", err)
	}

	pipelineSvc, err := runpipeline.NewService(runpipeline.ServiceConfig{Runner: stepRunner, Logger: cfg.Logger})
	if err != nil {
		ledger.Close()
		return nil, fmt.Errorf("could not create pipeline service: %w", err)
	}

	summarizeSvc, err := summarize.NewService(summarize.ServiceConfig{Ledger: ledger, Logger: cfg.Logger})
	if err != nil {
		ledger.Close()
		return nil, fmt.Errorf("could not create summarize service: %w", err)
	}

	return &Client{
		ledger:       ledger,
		runStepSvc:   runStepSvc,
		pipelineSvc:  pipelineSvc,
		summarizeSvc: summarizeSvc,
	}, nil
}

// Close releases the client's resources.
func (c *Client) Close() error { return c.ledger.Close() }

// RunStep runs one instrumented step and appends its record to the ledger.
//
// A non-zero exit without AllowFailure returns the record together with a
// [StepFailedError]; the record is already persisted at that point.
func (c *Client) RunStep(ctx context.Context, spec StepSpec) (*StepRecord, error) {
	record, err := c.runStepSvc.Run(ctx, runstep.Request{Spec: spec.toModel()})
	if record == nil {
		return nil, err
	}

	out := newStepRecord(*record)
	return &out, err
}

// RunPipeline runs a whole pipeline: stages in order, steps inside a stage
// fanned out up to the pipeline's parallelism limit.
//
// On a disallowed step failure the run stops launching new steps, in-flight
// steps drain, and the error is a [StepFailedError]; the result still carries
// everything that completed.
func (c *Client) RunPipeline(ctx context.Context, pipeline Pipeline) (*RunResult, error) {
	resp, err := c.pipelineSvc.Run(ctx, runpipeline.Request{Pipeline: pipeline.toModel()})
	if resp == nil {
		return nil, err
	}

	return &RunResult{RunID: resp.RunID, Records: newStepRecords(resp.Records)}, err
}

// Records returns all ledger records in append order.
func (c *Client) Records(ctx context.Context) ([]StepRecord, error) {
	records, err := c.ledger.ListRecords(ctx)
	if err != nil {
		return nil, err
	}
	return newStepRecords(records), nil
}

// Summarize aggregates the ledger's current records. Safe to call mid-run.
func (c *Client) Summarize(ctx context.Context) (*RunSummary, error) {
	summary, err := c.summarizeSvc.Run(ctx)
	if err != nil {
		return nil, err
	}

	out := newRunSummary(*summary)
	return &out, nil
}
