package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pipemeter/pipemeter/internal/log"
	"github.com/pipemeter/pipemeter/internal/storage"
	"github.com/pipemeter/pipemeter/internal/storage/csvfile"
	"github.com/pipemeter/pipemeter/internal/storage/sqlite"
)

// newLedger initializes the ledger backend for a path: a ".csv" path selects
// the CSV file ledger, anything else the SQLite one. The returned close
// function is always safe to call.
func newLedger(ctx context.Context, path string, logger log.Logger) (storage.Ledger, func() error, error) {
	noopClose := func() error { return nil }

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		ledger, err := csvfile.NewLedger(csvfile.LedgerConfig{
			Path:   path,
			Logger: logger,
		})
		if err != nil {
			return nil, noopClose, fmt.Errorf("could not create CSV ledger: %w", err)
		}
		return ledger, noopClose, nil
	}

	ledger, err := sqlite.NewLedger(ctx, sqlite.LedgerConfig{
		DBPath: path,
		Logger: logger,
	})
	if err != nil {
		return nil, noopClose, fmt.Errorf("could not create SQLite ledger: %w", err)
	}

	return ledger, ledger.Close, nil
}
