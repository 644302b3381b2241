package printer

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/pipemeter/pipemeter/internal/model"
)

// TablePrinter prints step records and summaries in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintRecord prints a single step record as a field list.
func (t *TablePrinter) PrintRecord(record model.StepRecord) error {
	fmt.Fprintf(t.writer, "Step:        %s\n", record.Name)
	if record.RunID != "" {
		fmt.Fprintf(t.writer, "Run:         %s\n", record.RunID)
	}
	fmt.Fprintf(t.writer, "Status:      %s\n", recordStatus(record))
	fmt.Fprintf(t.writer, "Started:     %s\n", FormatTimestamp(record.StartTime))
	fmt.Fprintf(t.writer, "Finished:    %s\n", FormatTimestamp(record.EndTime))
	fmt.Fprintf(t.writer, "Duration:    %s\n", FormatSeconds(record.DurationSeconds))
	fmt.Fprintf(t.writer, "Peak memory: %s\n", FormatBytes(int64(record.PeakMemoryBytes)))
	fmt.Fprintf(t.writer, "CPU:         %.1f%%\n", record.CPUPercent)
	fmt.Fprintf(t.writer, "I/O read:    %s\n", FormatBytes(int64(record.IOReadBytes)))
	fmt.Fprintf(t.writer, "I/O write:   %s\n", FormatBytes(int64(record.IOWriteBytes)))

	return nil
}

// PrintRecords prints step records in a table format.
func (t *TablePrinter) PrintRecords(records []model.StepRecord) error {
	if len(records) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header.
	fmt.Fprintln(tw, "STEP\tSTATUS\tDURATION\tPEAK MEM\tCPU\tIO READ\tIO WRITE\tSTARTED")

	// Print rows.
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f%%\t%s\t%s\t%s\n",
			r.Name,
			recordStatus(r),
			FormatSeconds(r.DurationSeconds),
			FormatBytes(int64(r.PeakMemoryBytes)),
			r.CPUPercent,
			FormatBytes(int64(r.IOReadBytes)),
			FormatBytes(int64(r.IOWriteBytes)),
			TimeAgo(r.StartTime),
		)
	}

	return nil
}

// PrintSummary prints a run summary as a field list.
func (t *TablePrinter) PrintSummary(summary model.RunSummary) error {
	fmt.Fprintf(t.writer, "Steps:       %d (%d failed)\n", summary.StepCount, summary.FailedCount)
	fmt.Fprintf(t.writer, "Wall time:   %s\n", FormatSeconds(summary.TotalWallSeconds))
	fmt.Fprintf(t.writer, "Peak memory: %s (sum of step peaks)\n", FormatBytes(int64(summary.TotalPeakMemoryBytes)))
	fmt.Fprintf(t.writer, "Average CPU: %.1f%%\n", summary.AverageCPUPercent)
	fmt.Fprintf(t.writer, "I/O read:    %s\n", FormatBytes(int64(summary.TotalIOReadBytes)))
	fmt.Fprintf(t.writer, "I/O write:   %s\n", FormatBytes(int64(summary.TotalIOWriteBytes)))

	return nil
}

// PrintMessage prints a simple message.
func (t *TablePrinter) PrintMessage(msg string) error {
	_, err := fmt.Fprintln(t.writer, msg)
	return err
}

func recordStatus(r model.StepRecord) string {
	if r.Failed() {
		return fmt.Sprintf("failed (%d)", r.ExitStatus)
	}
	return "ok"
}
