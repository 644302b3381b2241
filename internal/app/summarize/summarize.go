package summarize

import (
	"context"
	"fmt"
	"sort"

	"github.com/pipemeter/pipemeter/internal/log"
	"github.com/pipemeter/pipemeter/internal/model"
	"github.com/pipemeter/pipemeter/internal/storage"
)

// ServiceConfig is the configuration for the summarize service.
type ServiceConfig struct {
	Ledger storage.Ledger
	Logger log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Ledger == nil {
		return fmt.Errorf("ledger is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Summarize"})
	return nil
}

// Service computes run summaries from the ledger. It is a pure function over
// the ledger's current contents, so it is safe to call mid-run: it simply
// summarizes the steps completed so far.
type Service struct {
	ledger storage.Ledger
	logger log.Logger
}

// NewService creates a new summarize service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		ledger: cfg.Ledger,
		logger: cfg.Logger,
	}, nil
}

// Run summarizes all ledger records. An empty ledger yields an all-zero
// summary, not an error.
func (s *Service) Run(ctx context.Context) (*model.RunSummary, error) {
	records, err := s.ledger.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not read ledger: %w", err)
	}

	summary := Summarize(records)
	s.logger.Debugf("Summarized %d records", summary.StepCount)

	return &summary, nil
}

// Summarize aggregates step records into a run summary. Total wall time is
// the union of the step intervals, so overlapping (parallel) steps don't
// count twice; the CPU average is weighted by step duration.
func Summarize(records []model.StepRecord) model.RunSummary {
	summary := model.RunSummary{StepCount: len(records)}

	var totalDuration, weightedCPU float64
	for _, r := range records {
		summary.TotalPeakMemoryBytes += r.PeakMemoryBytes
		summary.TotalIOReadBytes += r.IOReadBytes
		summary.TotalIOWriteBytes += r.IOWriteBytes
		if r.Failed() {
			summary.FailedCount++
		}

		totalDuration += r.DurationSeconds
		weightedCPU += r.CPUPercent * r.DurationSeconds
	}

	if totalDuration > 0 {
		summary.AverageCPUPercent = weightedCPU / totalDuration
	}
	summary.TotalWallSeconds = mergedWallSeconds(records)

	return summary
}

type interval struct {
	start, end int64
}

// mergedWallSeconds returns the total length of the union of the records'
// execution intervals.
func mergedWallSeconds(records []model.StepRecord) float64 {
	if len(records) == 0 {
		return 0
	}

	intervals := make([]interval, 0, len(records))
	for _, r := range records {
		start := r.StartTime.Unix()
		end := r.EndTime.Unix()
		if end < start {
			end = start
		}
		intervals = append(intervals, interval{start: start, end: end})
	}

	sort.Slice(intervals, func(i, j int) bool { return intervals[i].start < intervals[j].start })

	var total int64
	current := intervals[0]
	for _, iv := range intervals[1:] {
		if iv.start <= current.end {
			if iv.end > current.end {
				current.end = iv.end
			}
			continue
		}
		total += current.end - current.start
		current = iv
	}
	total += current.end - current.start

	return float64(total)
}
