package lib

import (
	"time"

	"github.com/pipemeter/pipemeter/internal/model"
)

// StepSpec declares one instrumented step: a named external command.
type StepSpec struct {
	// Name identifies the step; unique within a run.
	Name string
	// Command is the command's argv (first element is the executable).
	Command []string
	// WorkingDir is the directory to run the command in (optional).
	WorkingDir string
	// Env contains additional environment variables for the command.
	Env map[string]string
	// AllowFailure records a non-zero exit without stopping the pipeline.
	AllowFailure bool
}

// Stage groups steps with no dependency between them; its steps fan out
// concurrently up to the pipeline's parallelism limit.
type Stage struct {
	Name  string
	Steps []StepSpec
}

// Pipeline is an ordered sequence of stages, run strictly in order.
type Pipeline struct {
	Name string
	// MaxParallelism caps fan-out inside a stage. Default: 1 (sequential).
	MaxParallelism int
	Stages         []Stage
}

// StepRecord is the measured result of one step, as persisted in the ledger.
// Records are immutable.
type StepRecord struct {
	// ID is the record's unique identifier (ULID).
	ID string
	// RunID groups the records of one pipeline run.
	RunID string
	// Name is the step's name.
	Name string
	// StartTime and EndTime bound the execution (UTC, second resolution).
	StartTime time.Time
	EndTime   time.Time
	// DurationSeconds is EndTime - StartTime.
	DurationSeconds float64
	// PeakMemoryBytes is the sampled peak RSS of the step's process tree
	// (a lower bound, see the package docs).
	PeakMemoryBytes uint64
	// CPUPercent is time-averaged CPU utilization (100 == one core).
	CPUPercent float64
	// IOReadBytes and IOWriteBytes are system-wide block I/O deltas.
	IOReadBytes  uint64
	IOWriteBytes uint64
	// ExitStatus is the command's literal exit code.
	ExitStatus int
}

// RunSummary aggregates ledger records. It is recomputed from the ledger on
// every call, so it can be requested mid-run.
type RunSummary struct {
	// TotalWallSeconds is the union of step intervals (overlapping parallel
	// steps don't count twice).
	TotalWallSeconds     float64
	TotalPeakMemoryBytes uint64
	AverageCPUPercent    float64
	TotalIOReadBytes     uint64
	TotalIOWriteBytes    uint64
	StepCount            int
	FailedCount          int
}

// RunResult is the outcome of a pipeline run.
type RunResult struct {
	// RunID stamps all the run's records.
	RunID string
	// Records are the completed steps in completion order.
	Records []StepRecord
}

// StepFailedError reports a step that exited non-zero without AllowFailure.
type StepFailedError = model.StepFailedError

var (
	// ErrNotValid is returned when an input (step spec, pipeline) is not valid.
	ErrNotValid = model.ErrNotValid
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = model.ErrNotFound
)

func (s StepSpec) toModel() model.StepSpec {
	return model.StepSpec{
		Name:         s.Name,
		Command:      s.Command,
		WorkingDir:   s.WorkingDir,
		Env:          s.Env,
		AllowFailure: s.AllowFailure,
	}
}

func (p Pipeline) toModel() model.Pipeline {
	maxParallelism := p.MaxParallelism
	if maxParallelism == 0 {
		maxParallelism = model.DefaultMaxParallelism
	}

	mp := model.Pipeline{Name: p.Name, MaxParallelism: maxParallelism}
	for _, stage := range p.Stages {
		ms := model.Stage{Name: stage.Name}
		for _, step := range stage.Steps {
			ms.Steps = append(ms.Steps, step.toModel())
		}
		mp.Stages = append(mp.Stages, ms)
	}

	return mp
}

func newStepRecord(r model.StepRecord) StepRecord {
	return StepRecord{
		ID:              r.ID,
		RunID:           r.RunID,
		Name:            r.Name,
		StartTime:       r.StartTime,
		EndTime:         r.EndTime,
		DurationSeconds: r.DurationSeconds,
		PeakMemoryBytes: r.PeakMemoryBytes,
		CPUPercent:      r.CPUPercent,
		IOReadBytes:     r.IOReadBytes,
		IOWriteBytes:    r.IOWriteBytes,
		ExitStatus:      r.ExitStatus,
	}
}

func newStepRecords(records []model.StepRecord) []StepRecord {
	out := make([]StepRecord, len(records))
	for i, r := range records {
		out[i] = newStepRecord(r)
	}
	return out
}

func newRunSummary(s model.RunSummary) RunSummary {
	return RunSummary{
		TotalWallSeconds:     s.TotalWallSeconds,
		TotalPeakMemoryBytes: s.TotalPeakMemoryBytes,
		AverageCPUPercent:    s.AverageCPUPercent,
		TotalIOReadBytes:     s.TotalIOReadBytes,
		TotalIOWriteBytes:    s.TotalIOWriteBytes,
		StepCount:            s.StepCount,
		FailedCount:          s.FailedCount,
	}
}
