package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pipemeter/pipemeter/internal/conventions"
	"github.com/pipemeter/pipemeter/internal/log"
	"github.com/pipemeter/pipemeter/internal/model"
	"github.com/pipemeter/pipemeter/internal/probe"
	"github.com/pipemeter/pipemeter/internal/sampler"
	"github.com/pipemeter/pipemeter/internal/storage"
)

// StepRunner executes one external command under timing and resource
// instrumentation and appends the resulting record to the ledger.
type StepRunner interface {
	Run(ctx context.Context, runID string, spec model.StepSpec) (*model.StepRecord, error)
}

// Config is the configuration for the runner.
type Config struct {
	Ledger storage.Ledger
	// LogDir is where each step's combined stdout/stderr lands
	// (<log-dir>/<step-name>.log), so concurrent steps don't interleave
	// their output on the orchestrator's terminal.
	LogDir  string
	Probe   probe.IOProbe
	Sampler sampler.Sampler
	Logger  log.Logger
}

func (c *Config) defaults() error {
	if c.Ledger == nil {
		return fmt.Errorf("ledger is required")
	}
	if c.LogDir == "" {
		return fmt.Errorf("log dir is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "runner.Step"})

	if c.Probe == nil {
		p, err := probe.NewDiskProbe(probe.DiskProbeConfig{Logger: c.Logger})
		if err != nil {
			return fmt.Errorf("could not create disk probe: %w", err)
		}
		c.Probe = p
	}
	if c.Sampler == nil {
		s, err := sampler.NewProcSampler(sampler.ProcSamplerConfig{Logger: c.Logger})
		if err != nil {
			return fmt.Errorf("could not create process sampler: %w", err)
		}
		c.Sampler = s
	}

	return nil
}

// Runner is the default StepRunner implementation.
type Runner struct {
	ledger  storage.Ledger
	logDir  string
	probe   probe.IOProbe
	sampler sampler.Sampler
	logger  log.Logger
}

// New creates a new runner.
func New(cfg Config) (*Runner, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Runner{
		ledger:  cfg.Ledger,
		logDir:  cfg.LogDir,
		probe:   cfg.Probe,
		sampler: cfg.Sampler,
		logger:  cfg.Logger,
	}, nil
}

// Run executes the step's command in its own process group, samples the
// group's resources while it runs, and appends one record to the ledger.
//
// A non-zero child exit is a measured result, not an error: it is captured
// in the record's ExitStatus and returned with a nil error. The error return
// is reserved for infrastructure failures (cannot spawn, cannot write the
// step log, cannot append to the ledger).
//
// The child is not killed on ctx cancellation: external toolkit steps leave
// inconsistent intermediate files when interrupted, so in-flight commands
// drain naturally.
func (r *Runner) Run(ctx context.Context, runID string, spec model.StepSpec) (*model.StepRecord, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid step: %w", err)
	}

	if err := os.MkdirAll(r.logDir, 0755); err != nil {
		return nil, fmt.Errorf("could not create log directory: %w", err)
	}

	logPath := conventions.StepLogPath(r.logDir, spec.Name)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not create step log file: %w", err)
	}
	defer logFile.Close()

	ioStart := r.readIOCounters(ctx)
	startTime := time.Now().UTC().Truncate(time.Second)

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.WorkingDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = mergedEnv(spec.Env)
	// Own process group, so the sampler sees any subprocesses the step spawns.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	r.logger.Infof("Running step %q: %v (log: %s)", spec.Name, spec.Command, logPath)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("could not start step command: %w", err)
	}

	handle, err := r.sampler.Start(cmd.Process.Pid)
	if err != nil {
		// Degraded measurement, not a failed step.
		r.logger.Warningf("Could not start resource sampler for step %q: %v", spec.Name, err)
		handle = nil
	}

	exitStatus := 0
	waitErr := cmd.Wait()

	var resources model.ResourceSummary
	if handle != nil {
		resources = handle.Stop()
	}
	ioEnd := r.readIOCounters(ctx)

	endTime := time.Now().UTC().Truncate(time.Second)
	if endTime.Before(startTime) {
		endTime = startTime
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("could not wait for step command: %w", waitErr)
		}
		exitStatus = exitErr.ExitCode()
	}

	record := model.StepRecord{
		ID:              ulid.Make().String(),
		RunID:           runID,
		Name:            spec.Name,
		StartTime:       startTime,
		EndTime:         endTime,
		DurationSeconds: endTime.Sub(startTime).Seconds(),
		PeakMemoryBytes: resources.PeakMemoryBytes,
		CPUPercent:      resources.AverageCPUPercent,
		IOReadBytes:     counterDelta(ioStart.ReadBytes, ioEnd.ReadBytes),
		IOWriteBytes:    counterDelta(ioStart.WriteBytes, ioEnd.WriteBytes),
		ExitStatus:      exitStatus,
	}

	if err := r.ledger.Append(ctx, record); err != nil {
		return nil, fmt.Errorf("could not append record to ledger: %w", err)
	}

	r.logger.Infof("Step %q finished: exit=%d duration=%.0fs peak_mem=%d cpu=%.1f%%",
		spec.Name, record.ExitStatus, record.DurationSeconds, record.PeakMemoryBytes, record.CPUPercent)

	return &record, nil
}

// readIOCounters degrades to zero counters on probe failure, measurement
// never aborts a step.
func (r *Runner) readIOCounters(ctx context.Context) model.IOCounters {
	counters, err := r.probe.Read(ctx)
	if err != nil {
		r.logger.Warningf("Could not read I/O counters: %v", err)
		return model.IOCounters{}
	}
	return counters
}

// counterDelta guards against counter resets between reads.
func counterDelta(start, end uint64) uint64 {
	if end < start {
		return 0
	}
	return end - start
}

func mergedEnv(extra map[string]string) []string {
	if len(extra) == 0 {
		return nil // nil means inherit the parent environment.
	}

	env := os.Environ()
	for k, v := range extra {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
