package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/pipemeter/pipemeter/internal/model"
)

// JSONPrinter prints step records and summaries in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// recordOutput represents a single step record in the JSON output.
type recordOutput struct {
	ID              string    `json:"id,omitempty"`
	RunID           string    `json:"run_id,omitempty"`
	Name            string    `json:"name"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationSeconds float64   `json:"duration_seconds"`
	PeakMemoryBytes uint64    `json:"peak_memory_bytes"`
	CPUPercent      float64   `json:"cpu_percent"`
	IOReadBytes     uint64    `json:"io_read_bytes"`
	IOWriteBytes    uint64    `json:"io_write_bytes"`
	ExitStatus      int       `json:"exit_status"`
}

// summaryOutput represents the run summary in the JSON output.
type summaryOutput struct {
	TotalWallSeconds     float64 `json:"total_wall_seconds"`
	TotalPeakMemoryBytes uint64  `json:"total_peak_memory_bytes"`
	AverageCPUPercent    float64 `json:"average_cpu_percent"`
	TotalIOReadBytes     uint64  `json:"total_io_read_bytes"`
	TotalIOWriteBytes    uint64  `json:"total_io_write_bytes"`
	StepCount            int     `json:"step_count"`
	FailedCount          int     `json:"failed_count"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

func newRecordOutput(r model.StepRecord) recordOutput {
	return recordOutput{
		ID:              r.ID,
		RunID:           r.RunID,
		Name:            r.Name,
		StartTime:       r.StartTime.UTC(),
		EndTime:         r.EndTime.UTC(),
		DurationSeconds: r.DurationSeconds,
		PeakMemoryBytes: r.PeakMemoryBytes,
		CPUPercent:      r.CPUPercent,
		IOReadBytes:     r.IOReadBytes,
		IOWriteBytes:    r.IOWriteBytes,
		ExitStatus:      r.ExitStatus,
	}
}

// PrintRecord prints a single step record in JSON format.
func (j *JSONPrinter) PrintRecord(record model.StepRecord) error {
	return j.encode(newRecordOutput(record))
}

// PrintRecords prints step records in JSON format.
func (j *JSONPrinter) PrintRecords(records []model.StepRecord) error {
	items := make([]recordOutput, len(records))
	for i, r := range records {
		items[i] = newRecordOutput(r)
	}
	return j.encode(items)
}

// PrintSummary prints a run summary in JSON format.
func (j *JSONPrinter) PrintSummary(summary model.RunSummary) error {
	return j.encode(summaryOutput{
		TotalWallSeconds:     summary.TotalWallSeconds,
		TotalPeakMemoryBytes: summary.TotalPeakMemoryBytes,
		AverageCPUPercent:    summary.AverageCPUPercent,
		TotalIOReadBytes:     summary.TotalIOReadBytes,
		TotalIOWriteBytes:    summary.TotalIOWriteBytes,
		StepCount:            summary.StepCount,
		FailedCount:          summary.FailedCount,
	})
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
