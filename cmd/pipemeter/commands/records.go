package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/pipemeter/pipemeter/internal/printer"
)

type RecordsCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	runID  string
	format string
}

// NewRecordsCommand returns the records command.
func NewRecordsCommand(rootCmd *RootCommand, app *kingpin.Application) *RecordsCommand {
	c := &RecordsCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("records", "List the ledger's step records in append order.")
	c.Cmd.Flag("run-id", "Only show records of the given run.").StringVar(&c.runID)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c RecordsCommand) Name() string { return c.Cmd.FullCommand() }

func (c RecordsCommand) Run(ctx context.Context) error {
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

	if c.runID != "" {
		filtered := records[:0]
		for _, r := range records {
			if r.RunID == c.runID {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}

	// Print output.
	var p printer.Printer
	switch c.format {
	case "json":
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default: // table
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	if err := p.PrintRecords(records); err != nil {
		return fmt.Errorf("could not print records: %w", err)
	}

	return nil
}
