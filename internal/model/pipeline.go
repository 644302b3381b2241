package model

import (
	"fmt"
)

// DefaultMaxParallelism is the fan-out limit used when a pipeline doesn't
// declare one.
const DefaultMaxParallelism = 1

// Pipeline is an ordered sequence of stages. Stages run strictly in
// declaration order; the steps inside a stage fan out concurrently up to
// MaxParallelism.
type Pipeline struct {
	Name           string
	MaxParallelism int
	Stages         []Stage
}

// Stage is a group of steps with no dependency between them. All steps of a
// stage must complete before the next stage begins.
type Stage struct {
	Name  string
	Steps []StepSpec
}

// Steps returns all pipeline steps in declaration order.
func (p Pipeline) Steps() []StepSpec {
	var steps []StepSpec
	for _, st := range p.Stages {
		steps = append(steps, st.Steps...)
	}
	return steps
}

// Validate validates the pipeline declaration.
func (p Pipeline) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("pipeline name is required: %w", ErrNotValid)
	}
	if p.MaxParallelism < 0 {
		return fmt.Errorf("max_parallelism cannot be negative: %w", ErrNotValid)
	}
	if len(p.Stages) == 0 {
		return fmt.Errorf("pipeline must declare at least one stage: %w", ErrNotValid)
	}

	seen := map[string]bool{}
	for _, stage := range p.Stages {
		if stage.Name == "" {
			return fmt.Errorf("stage name is required: %w", ErrNotValid)
		}
		if len(stage.Steps) == 0 {
			return fmt.Errorf("stage %q must declare at least one step: %w", stage.Name, ErrNotValid)
		}
		for _, step := range stage.Steps {
			if err := step.Validate(); err != nil {
				return fmt.Errorf("stage %q: %w", stage.Name, err)
			}
			if seen[step.Name] {
				return fmt.Errorf("duplicated step name %q: %w", step.Name, ErrNotValid)
			}
			seen[step.Name] = true
		}
	}

	return nil
}
