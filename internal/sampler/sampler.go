package sampler

import (
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/pipemeter/pipemeter/internal/log"
	"github.com/pipemeter/pipemeter/internal/model"
)

const defaultInterval = 1 * time.Second

// Sampler starts background resource sampling for a process group.
type Sampler interface {
	// Start begins sampling the process group led by pgid and returns
	// immediately. Sampling runs on its own goroutine until Stop.
	Start(pgid int) (Handle, error)
}

// Handle owns one sampling loop. Handles from concurrent Start calls are
// independent: each has its own goroutine and sample state.
type Handle interface {
	// Stop terminates the sampling loop and returns the summary computed
	// from all samples taken so far. A group that exited before the first
	// sample yields a zero summary.
	Stop() model.ResourceSummary
}

// ProcSamplerConfig is the configuration for the process sampler.
type ProcSamplerConfig struct {
	// Interval between samples. Finer granularity trades overhead for
	// accuracy; the default of 1s is adequate for multi-minute steps.
	Interval time.Duration
	Logger   log.Logger
}

func (c *ProcSamplerConfig) defaults() error {
	if c.Interval < 0 {
		return fmt.Errorf("interval cannot be negative")
	}
	if c.Interval == 0 {
		c.Interval = defaultInterval
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "sampler.Proc"})
	return nil
}

// ProcSampler samples the resident memory and CPU time of every live
// process in a process group. Membership is the group itself (getpgid), so
// subprocesses spawned by the step are included without tracking forks.
//
// Peak memory is a lower bound on the true peak: spikes shorter than the
// sampling interval are missed.
type ProcSampler struct {
	interval time.Duration
	logger   log.Logger
}

// NewProcSampler creates a new process sampler.
func NewProcSampler(cfg ProcSamplerConfig) (*ProcSampler, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &ProcSampler{interval: cfg.Interval, logger: cfg.Logger}, nil
}

// Start satisfies Sampler.
func (s *ProcSampler) Start(pgid int) (Handle, error) {
	if pgid <= 0 {
		return nil, fmt.Errorf("invalid process group id %d", pgid)
	}

	h := &procHandle{
		pgid:      pgid,
		interval:  s.interval,
		logger:    s.logger,
		lastCPU:   map[int32]float64{},
		startedAt: time.Now(),
		stopC:     make(chan struct{}),
		doneC:     make(chan struct{}),
	}
	go h.loop()

	s.logger.Debugf("Started sampling process group %d", pgid)
	return h, nil
}

type procHandle struct {
	pgid     int
	interval time.Duration
	logger   log.Logger

	// Sample state, owned by the loop goroutine until doneC is closed.
	peakMemory  uint64
	busySeconds float64
	samples     int
	lastCPU     map[int32]float64

	startedAt time.Time
	stoppedAt time.Time

	stopC    chan struct{}
	doneC    chan struct{}
	stopOnce sync.Once
}

func (h *procHandle) loop() {
	defer close(h.doneC)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.sample()
		case <-h.stopC:
			// One final sample catches processes still alive at stop time.
			h.sample()
			h.stoppedAt = time.Now()
			return
		}
	}
}

// sample takes one snapshot of the process group: total RSS across members
// and per-process CPU time deltas. Vanished processes are normal (the group
// is winding down), never an error.
func (h *procHandle) sample() {
	procs, err := process.Processes()
	if err != nil {
		h.logger.Warningf("Could not list processes: %v", err)
		return
	}

	var rss uint64
	seen := false
	for _, p := range procs {
		pgid, err := syscall.Getpgid(int(p.Pid))
		if err != nil || pgid != h.pgid {
			continue
		}

		if mem, err := p.MemoryInfo(); err == nil && mem != nil {
			rss += mem.RSS
			seen = true
		}

		if times, err := p.Times(); err == nil && times != nil {
			total := times.User + times.System
			// A process's CPU clock starts at zero, so the first sight of a
			// pid contributes its whole accumulated time.
			if delta := total - h.lastCPU[p.Pid]; delta > 0 {
				h.busySeconds += delta
			}
			h.lastCPU[p.Pid] = total
		}
	}

	if !seen {
		return
	}

	h.samples++
	if rss > h.peakMemory {
		h.peakMemory = rss
	}
}

// Stop satisfies Handle.
func (h *procHandle) Stop() model.ResourceSummary {
	h.stopOnce.Do(func() { close(h.stopC) })
	<-h.doneC

	if h.samples == 0 {
		return model.ResourceSummary{}
	}

	elapsed := h.stoppedAt.Sub(h.startedAt).Seconds()
	var avgCPU float64
	if elapsed > 0 {
		avgCPU = h.busySeconds / elapsed * 100
	}

	return model.ResourceSummary{
		PeakMemoryBytes:   h.peakMemory,
		AverageCPUPercent: avgCPU,
		Samples:           h.samples,
	}
}
