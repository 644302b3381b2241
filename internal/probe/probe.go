package probe

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/pipemeter/pipemeter/internal/log"
	"github.com/pipemeter/pipemeter/internal/model"
)

// IOProbe reads cumulative since-boot block device byte counters at a point
// in time. Counters are system-wide, not process-scoped: concurrent steps
// see each other's I/O in their deltas.
type IOProbe interface {
	Read(ctx context.Context) (model.IOCounters, error)
}

// DiskProbeConfig is the configuration for the disk probe.
type DiskProbeConfig struct {
	Logger log.Logger
}

func (c *DiskProbeConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "probe.Disk"})
	return nil
}

// DiskProbe is an IOProbe over the OS block device counters. It reads the
// primary block device: the busiest whole-disk device, partitions and
// virtual devices filtered out.
type DiskProbe struct {
	logger log.Logger
}

// NewDiskProbe creates a new disk probe.
func NewDiskProbe(cfg DiskProbeConfig) (*DiskProbe, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &DiskProbe{logger: cfg.Logger}, nil
}

// Read returns the primary device's cumulative counters. When no
// recognizable device exists (containers, exotic storage) it returns zero
// counters instead of failing: I/O accounting degrades to "unknown" rather
// than aborting the step.
func (p *DiskProbe) Read(ctx context.Context) (model.IOCounters, error) {
	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		p.logger.Warningf("Could not read block device counters: %v", err)
		return model.IOCounters{}, nil
	}

	name, ok := PrimaryDevice(counters)
	if !ok {
		p.logger.Debugf("No recognizable block device found, I/O accounting disabled")
		return model.IOCounters{}, nil
	}

	c := counters[name]
	return model.IOCounters{ReadBytes: c.ReadBytes, WriteBytes: c.WriteBytes}, nil
}

var partitionRegexp = regexp.MustCompile(`^((sd|vd|xvd|hd)[a-z]+\d+|nvme\d+n\d+p\d+|mmcblk\d+p\d+)$`)

var virtualPrefixes = []string{"loop", "ram", "dm-", "sr", "fd", "md", "zram"}

// PrimaryDevice elects the primary block device from a counter map: the
// whole-disk device with the most cumulative traffic. Returns false when no
// candidate remains after filtering.
func PrimaryDevice(counters map[string]disk.IOCountersStat) (string, bool) {
	var best string
	var bestTotal uint64
	found := false

	for name, c := range counters {
		if isVirtualDevice(name) || partitionRegexp.MatchString(name) {
			continue
		}

		total := c.ReadBytes + c.WriteBytes
		if !found || total > bestTotal || (total == bestTotal && name < best) {
			best = name
			bestTotal = total
			found = true
		}
	}

	return best, found
}

func isVirtualDevice(name string) bool {
	for _, prefix := range virtualPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
