package probemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/pipemeter/pipemeter/internal/model"
)

// MockIOProbe is a testify mock of probe.IOProbe.
type MockIOProbe struct {
	mock.Mock
}

// Read satisfies probe.IOProbe.
func (m *MockIOProbe) Read(ctx context.Context) (model.IOCounters, error) {
	args := m.Called(ctx)
	counters, _ := args.Get(0).(model.IOCounters)
	return counters, args.Error(1)
}
