package runpipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/pipemeter/pipemeter/internal/log"
	"github.com/pipemeter/pipemeter/internal/model"
	"github.com/pipemeter/pipemeter/internal/runner"
)

// ServiceConfig is the configuration for the pipeline service.
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.RunPipeline"})
	return nil
}

// Service orchestrates a pipeline: stages run strictly in declaration order,
// the steps of a stage fan out concurrently up to the pipeline's parallelism
// limit. The service is pure sequencing over the step runner; it holds no
// measurement logic.
type Service struct {
	runner runner.StepRunner
	logger log.Logger
}

// NewService creates a new pipeline service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		runner: cfg.Runner,
		logger: cfg.Logger,
	}, nil
}

// Request contains the parameters for running a pipeline.
type Request struct {
	Pipeline model.Pipeline
	// RunID stamps all of the run's records. Generated when empty.
	RunID string
}

// Response is the result of a pipeline run.
type Response struct {
	RunID string
	// Records are the completed steps' records in completion order, which
	// for fan-out stages may differ from declaration order.
	Records []model.StepRecord
}

// Run executes the pipeline. When a step without AllowFailure exits non-zero
// the service stops launching new steps, lets in-flight steps drain
// naturally (no forced kill: interrupted toolkit commands leave inconsistent
// intermediate files), and returns the records collected so far together
// with a model.StepFailedError. Steps with AllowFailure log their failure
// and the run continues.
func (s *Service) Run(ctx context.Context, req Request) (*Response, error) {
	if err := req.Pipeline.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	runID := req.RunID
	if runID == "" {
		runID = ulid.Make().String()
	}

	maxParallelism := req.Pipeline.MaxParallelism
	if maxParallelism <= 0 {
		maxParallelism = model.DefaultMaxParallelism
	}

	logger := s.logger.WithValues(log.Kv{"run-id": runID, "pipeline": req.Pipeline.Name})
	logger.Infof("Running pipeline with %d stages (max parallelism %d)", len(req.Pipeline.Stages), maxParallelism)

	var (
		mu       sync.Mutex
		records  []model.StepRecord
		stepErr  *model.StepFailedError
		infraErr error
	)

	for _, stage := range req.Pipeline.Stages {
		mu.Lock()
		stop := stepErr != nil || infraErr != nil
		mu.Unlock()
		if stop {
			break
		}

		logger.Infof("Stage %q: %d steps", stage.Name, len(stage.Steps))

		var g errgroup.Group
		g.SetLimit(maxParallelism)

		for _, step := range stage.Steps {
			step := step
			g.Go(func() error {
				// Once a disallowed failure is seen no new steps launch;
				// steps already running drain on their own.
				mu.Lock()
				skip := stepErr != nil || infraErr != nil
				mu.Unlock()
				if skip {
					logger.Debugf("Skipping step %q after previous failure", step.Name)
					return nil
				}

				record, err := s.runner.Run(ctx, runID, step)

				mu.Lock()
				defer mu.Unlock()

				if err != nil {
					if infraErr == nil {
						infraErr = fmt.Errorf("step %q: %w", step.Name, err)
					}
					return nil
				}

				records = append(records, *record)

				if record.Failed() {
					if step.AllowFailure {
						logger.Warningf("Step %q failed with exit status %d (failure allowed)", record.Name, record.ExitStatus)
					} else if stepErr == nil {
						stepErr = &model.StepFailedError{StepName: record.Name, ExitStatus: record.ExitStatus}
					}
				}

				return nil
			})
		}

		// Goroutines report through the shared state, never through the group.
		_ = g.Wait()
	}

	resp := &Response{RunID: runID, Records: records}

	if infraErr != nil {
		return resp, infraErr
	}
	if stepErr != nil {
		return resp, *stepErr
	}

	logger.Infof("Pipeline finished: %d steps completed", len(records))
	return resp, nil
}
