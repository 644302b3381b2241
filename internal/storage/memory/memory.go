package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/pipemeter/pipemeter/internal/log"
	"github.com/pipemeter/pipemeter/internal/model"
)

// LedgerConfig is the configuration for the memory ledger.
type LedgerConfig struct {
	Logger log.Logger
}

func (c *LedgerConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Ledger is an in-memory implementation of storage.Ledger. Useful for tests
// and library embedding, records don't survive the process.
type Ledger struct {
	records []model.StepRecord
	mu      sync.RWMutex
	logger  log.Logger
}

// NewLedger creates a new memory ledger.
func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Ledger{logger: cfg.Logger}, nil
}

// Append appends a record.
func (l *Ledger) Append(ctx context.Context, r model.StepRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, r)
	l.logger.Debugf("Appended record for step %s", r.Name)

	return nil
}

// ListRecords returns all records in append order.
func (l *Ledger) ListRecords(ctx context.Context) ([]model.StepRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	// Return a copy.
	records := make([]model.StepRecord, len(l.records))
	copy(records, l.records)

	return records, nil
}
