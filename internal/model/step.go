package model

import (
	"fmt"
	"time"
)

// StepSpec is the declaration of a single instrumented step: a named,
// opaque external command invocation.
type StepSpec struct {
	// Name identifies the step. Unique within a run, also used for the
	// step's log file name.
	Name string
	// Command is the argv of the external command. Never a shell string,
	// the first element is the executable.
	Command []string
	// WorkingDir is the directory to run the command in (optional).
	WorkingDir string
	// Env contains additional environment variables for the command.
	Env map[string]string
	// AllowFailure marks the step as optional: a non-zero exit is recorded
	// but does not stop the pipeline.
	AllowFailure bool
}

// Validate validates the step spec.
func (s StepSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("step name is required: %w", ErrNotValid)
	}
	if len(s.Command) == 0 {
		return fmt.Errorf("step %q command cannot be empty: %w", s.Name, ErrNotValid)
	}
	return nil
}

// StepRecord is one row of execution history: the measured result of running
// a single step. Records are immutable once appended to the ledger.
type StepRecord struct {
	// ID is the record's unique ID (ULID).
	ID string
	// RunID groups the records of one pipeline run. Empty for standalone steps.
	RunID string
	// Name is the step's name.
	Name string
	// StartTime and EndTime bound the step's execution (UTC, second resolution).
	StartTime time.Time
	EndTime   time.Time
	// DurationSeconds is EndTime - StartTime.
	DurationSeconds float64
	// PeakMemoryBytes is the maximum resident memory observed across the
	// step's process tree. A lower bound: spikes between samples are missed.
	PeakMemoryBytes uint64
	// CPUPercent is the time-averaged CPU utilization over the step's
	// duration. 100 == one core saturated, >100 == multi-core use.
	CPUPercent float64
	// IOReadBytes and IOWriteBytes are system-wide block device deltas
	// between step start and end. Concurrent steps pollute each other's
	// deltas, this is a known approximation.
	IOReadBytes  uint64
	IOWriteBytes uint64
	// ExitStatus is the child's literal exit code. 0 == success.
	ExitStatus int
}

// Failed reports whether the step's command exited non-zero.
func (r StepRecord) Failed() bool { return r.ExitStatus != 0 }

// IOCounters are cumulative since-boot block device byte counters.
type IOCounters struct {
	ReadBytes  uint64
	WriteBytes uint64
}

// ResourceSummary is the output of sampling a step's process tree.
// Zero value means the step finished before the first sample was taken.
type ResourceSummary struct {
	PeakMemoryBytes   uint64
	AverageCPUPercent float64
	// Samples is the number of samples the summary was computed from.
	Samples int
}

// RunSummary is derived from the ledger's records, never persisted. It is
// recomputable at any time, including mid-run over the completed steps so far.
type RunSummary struct {
	// TotalWallSeconds is the union of the step execution intervals, so it
	// can be less than the sum of durations when steps overlap.
	TotalWallSeconds float64
	// TotalPeakMemoryBytes is the sum of per-step memory peaks.
	TotalPeakMemoryBytes uint64
	// AverageCPUPercent is the duration-weighted average over all steps.
	AverageCPUPercent float64
	TotalIOReadBytes  uint64
	TotalIOWriteBytes uint64
	StepCount         int
	FailedCount       int
}
