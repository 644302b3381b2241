package printer

import "github.com/pipemeter/pipemeter/internal/model"

// Printer knows how to print step records and run summaries in different
// formats.
type Printer interface {
	PrintRecord(record model.StepRecord) error
	PrintRecords(records []model.StepRecord) error
	PrintSummary(summary model.RunSummary) error
	PrintMessage(msg string) error
}
