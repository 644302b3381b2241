package runstep

import (
	"context"
	"fmt"

	"github.com/pipemeter/pipemeter/internal/log"
	"github.com/pipemeter/pipemeter/internal/model"
	"github.com/pipemeter/pipemeter/internal/runner"
)

// ServiceConfig is the configuration for the run-step service.
type ServiceConfig struct {
	Runner runner.StepRunner
	Logger log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Runner == nil {
		return fmt.Errorf("runner is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.RunStep"})
	return nil
}

// Service runs a single instrumented step.
type Service struct {
	runner runner.StepRunner
	logger log.Logger
}

// NewService creates a new run-step service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		runner: cfg.Runner,
		logger: cfg.Logger,
	}, nil
}

// Request contains the parameters for running a single step.
type Request struct {
	Spec model.StepSpec
	// RunID groups the record with a pipeline run (optional).
	RunID string
}

// Run executes one step. The record is always appended to the ledger before
// returning. A non-zero exit is returned as model.StepFailedError unless the
// step allows failure; the record accompanies the error so partial results
// stay available.
func (s *Service) Run(ctx context.Context, req Request) (*model.StepRecord, error) {
	if err := req.Spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	record, err := s.runner.Run(ctx, req.RunID, req.Spec)
	if err != nil {
		return nil, fmt.Errorf("could not run step: %w", err)
	}

	if record.Failed() {
		if req.Spec.AllowFailure {
			s.logger.Warningf("Step %q failed with exit status %d (failure allowed)", record.Name, record.ExitStatus)
			return record, nil
		}
		return record, model.StepFailedError{StepName: record.Name, ExitStatus: record.ExitStatus}
	}

	return record, nil
}
