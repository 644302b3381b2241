package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/pipemeter/pipemeter/internal/printer"
	"github.com/pipemeter/pipemeter/internal/storage/csvfile"
)

type ExportCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	destPath string
}

// NewExportCommand returns the export command.
func NewExportCommand(rootCmd *RootCommand, app *kingpin.Application) *ExportCommand {
	c := &ExportCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("export", "Export the ledger to the CSV interchange format for report tooling.")
	c.Cmd.Arg("dest", "Destination CSV file path.").Required().StringVar(&c.destPath)

	return c
}

func (c ExportCommand) Name() string { return c.Cmd.FullCommand() }

func (c ExportCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	// Initialize ledger storage.
	ledger, closeLedger, err := newLedger(ctx, c.rootCmd.LedgerPath, logger)
	if err != nil {
		return err
	}
	defer closeLedger()

	records, err := ledger.ListRecords(ctx)
	if err != nil {
		return fmt.Errorf("could not list records: %w", err)
	}

	dest, err := csvfile.NewLedger(csvfile.LedgerConfig{
		Path:   c.destPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create destination ledger: %w", err)
	}

	for _, r := range records {
		if err := dest.Append(ctx, r); err != nil {
			return fmt.Errorf("could not export record for step %q: %w", r.Name, err)
		}
	}

	p := printer.NewTablePrinter(c.rootCmd.Stdout)
	return p.PrintMessage(fmt.Sprintf("Exported %d records to %s", len(records), c.destPath))
}
