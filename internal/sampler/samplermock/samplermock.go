package samplermock

import (
	"github.com/stretchr/testify/mock"

	"github.com/pipemeter/pipemeter/internal/model"
	"github.com/pipemeter/pipemeter/internal/sampler"
)

// MockSampler is a testify mock of sampler.Sampler.
type MockSampler struct {
	mock.Mock
}

// Start satisfies sampler.Sampler.
func (m *MockSampler) Start(pgid int) (sampler.Handle, error) {
	args := m.Called(pgid)
	handle, _ := args.Get(0).(sampler.Handle)
	return handle, args.Error(1)
}

// MockHandle is a testify mock of sampler.Handle.
type MockHandle struct {
	mock.Mock
}

// Stop satisfies sampler.Handle.
func (m *MockHandle) Stop() model.ResourceSummary {
	args := m.Called()
	summary, _ := args.Get(0).(model.ResourceSummary)
	return summary
}
