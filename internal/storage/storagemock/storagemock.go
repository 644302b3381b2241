package storagemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/pipemeter/pipemeter/internal/model"
)

// MockLedger is a testify mock of storage.Ledger.
type MockLedger struct {
	mock.Mock
}

// Append satisfies storage.Ledger.
func (m *MockLedger) Append(ctx context.Context, r model.StepRecord) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

// ListRecords satisfies storage.Ledger.
func (m *MockLedger) ListRecords(ctx context.Context) ([]model.StepRecord, error) {
	args := m.Called(ctx)
	records, _ := args.Get(0).([]model.StepRecord)
	return records, args.Error(1)
}
