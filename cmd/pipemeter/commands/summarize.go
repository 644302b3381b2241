package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/pipemeter/pipemeter/internal/app/summarize"
	"github.com/pipemeter/pipemeter/internal/printer"
)

type SummarizeCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewSummarizeCommand returns the summarize command.
func NewSummarizeCommand(rootCmd *RootCommand, app *kingpin.Application) *SummarizeCommand {
	c := &SummarizeCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("summarize", "Compute run statistics over the ledger's records.")
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c SummarizeCommand) Name() string { return c.Cmd.FullCommand() }

func (c SummarizeCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	// Initialize ledger storage.
	ledger, closeLedger, err := newLedger(ctx, c.rootCmd.LedgerPath, logger)
	if err != nil {
		return err
	}
	defer closeLedger()

	// Create summarize service.
	svc, err := summarize.NewService(summarize.ServiceConfig{
		Ledger: ledger,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	summary, err := svc.Run(ctx)
	if err != nil {
		return fmt.Errorf("could not summarize ledger: %w", err)
	}

	// Print output.
	var p printer.Printer
	switch c.format {
	case "json":
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default: // table
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	if err := p.PrintSummary(*summary); err != nil {
		return fmt.Errorf("could not print summary: %w", err)
	}

	return nil
}
