package io

import (
	"context"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"

	"github.com/pipemeter/pipemeter/internal/model"
)

// PipelineYAMLRepository loads pipeline declarations from YAML files.
type PipelineYAMLRepository struct {
	fs fs.FS
}

// NewPipelineYAMLRepository creates a new YAML pipeline repository.
func NewPipelineYAMLRepository(filesystem fs.FS) *PipelineYAMLRepository {
	return &PipelineYAMLRepository{fs: filesystem}
}

// GetPipeline loads a pipeline from a YAML file and returns a validated
// domain model.
func (r *PipelineYAMLRepository) GetPipeline(ctx context.Context, path string) (model.Pipeline, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return model.Pipeline{}, fmt.Errorf("reading pipeline file: %w", err)
	}

	if ctx.Err() != nil {
		return model.Pipeline{}, ctx.Err()
	}

	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return model.Pipeline{}, fmt.Errorf("parsing YAML: %w", err)
	}

	pipeline := p.toModel()
	if err := pipeline.Validate(); err != nil {
		return model.Pipeline{}, fmt.Errorf("invalid pipeline: %w", err)
	}

	return pipeline, nil
}

// Pipeline represents the YAML structure for a pipeline declaration.
//
//	name: microbiome-run
//	max_parallelism: 3
//	stages:
//	  - name: denoise
//	    steps:
//	      - name: denoise-gut
//	        command: ["qiime", "dada2", "denoise-paired", ...]
//	      - name: denoise-oral
//	        command: ["qiime", "dada2", "denoise-paired", ...]
type Pipeline struct {
	Name           string  `yaml:"name"`
	MaxParallelism int     `yaml:"max_parallelism"`
	Stages         []Stage `yaml:"stages"`
}

// Stage represents the YAML structure for a stage: its steps fan out
// concurrently, stages run in declaration order.
type Stage struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step represents the YAML structure for a single step.
type Step struct {
	Name         string            `yaml:"name"`
	Command      []string          `yaml:"command"`
	WorkingDir   string            `yaml:"working_dir"`
	Env          map[string]string `yaml:"env"`
	AllowFailure bool              `yaml:"allow_failure"`
}

func (p Pipeline) toModel() model.Pipeline {
	maxParallelism := p.MaxParallelism
	if maxParallelism == 0 {
		maxParallelism = model.DefaultMaxParallelism
	}

	pipeline := model.Pipeline{
		Name:           p.Name,
		MaxParallelism: maxParallelism,
	}
	for _, stage := range p.Stages {
		s := model.Stage{Name: stage.Name}
		for _, step := range stage.Steps {
			s.Steps = append(s.Steps, model.StepSpec{
				Name:         step.Name,
				Command:      step.Command,
				WorkingDir:   step.WorkingDir,
				Env:          step.Env,
				AllowFailure: step.AllowFailure,
			})
		}
		pipeline.Stages = append(pipeline.Stages, s)
	}

	return pipeline
}
