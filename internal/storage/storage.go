package storage

import (
	"context"

	"github.com/pipemeter/pipemeter/internal/model"
)

// Ledger is the interface for step record persistence: an append-only,
// ordered sequence of records. Record order is completion order, which may
// differ from declaration order when steps run concurrently.
type Ledger interface {
	// Append durably appends a single record. Safe to call from concurrent
	// step runners, a row is never interleaved or half-written.
	Append(ctx context.Context, r model.StepRecord) error
	// ListRecords returns all records in append order.
	ListRecords(ctx context.Context) ([]model.StepRecord, error)
}
