package runnermock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/pipemeter/pipemeter/internal/model"
)

// MockStepRunner is a testify mock of runner.StepRunner.
type MockStepRunner struct {
	mock.Mock
}

// Run satisfies runner.StepRunner.
func (m *MockStepRunner) Run(ctx context.Context, runID string, spec model.StepSpec) (*model.StepRecord, error) {
	args := m.Called(ctx, runID, spec)
	record, _ := args.Get(0).(*model.StepRecord)
	return record, args.Error(1)
}
