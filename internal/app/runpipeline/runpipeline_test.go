package runpipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pipemeter/pipemeter/internal/app/runpipeline"
	"github.com/pipemeter/pipemeter/internal/model"
	"github.com/pipemeter/pipemeter/internal/runner/runnermock"
)

func step(name string) model.StepSpec {
	return model.StepSpec{Name: name, Command: []string{"true"}}
}

func newService(t *testing.T, mRunner *runnermock.MockStepRunner) *runpipeline.Service {
	t.Helper()

	svc, err := runpipeline.NewService(runpipeline.ServiceConfig{Runner: mRunner})
	require.NoError(t, err)

	return svc
}

func TestServiceRunStageOrder(t *testing.T) {
	assert := assert.New(t)

	var (
		mu    sync.Mutex
		order []string
	)
	mRunner := &runnermock.MockStepRunner{}
	mRunner.On("Run", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		spec := args.Get(2).(model.StepSpec)
		mu.Lock()
		order = append(order, spec.Name)
		mu.Unlock()
	}).Return(&model.StepRecord{ExitStatus: 0}, nil)

	svc := newService(t, mRunner)

	resp, err := svc.Run(context.Background(), runpipeline.Request{
		Pipeline: model.Pipeline{
			Name: "ordered",
			Stages: []model.Stage{
				{Name: "first", Steps: []model.StepSpec{step("a")}},
				{Name: "second", Steps: []model.StepSpec{step("b")}},
				{Name: "third", Steps: []model.StepSpec{step("c")}},
			},
		},
	})

	require.NoError(t, err)
	assert.Equal([]string{"a", "b", "c"}, order)
	assert.Len(resp.Records, 3)
	assert.NotEmpty(resp.RunID)
}

func TestServiceRunGeneratesRunID(t *testing.T) {
	assert := assert.New(t)

	mRunner := &runnermock.MockStepRunner{}
	mRunner.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(&model.StepRecord{}, nil)

	svc := newService(t, mRunner)
	pipeline := model.Pipeline{
		Name:   "ids",
		Stages: []model.Stage{{Name: "only", Steps: []model.StepSpec{step("a")}}},
	}

	resp1, err := svc.Run(context.Background(), runpipeline.Request{Pipeline: pipeline})
	require.NoError(t, err)
	resp2, err := svc.Run(context.Background(), runpipeline.Request{Pipeline: pipeline})
	require.NoError(t, err)

	assert.NotEmpty(resp1.RunID)
	assert.NotEqual(resp1.RunID, resp2.RunID)

	// An explicit run ID is used as-is and handed to the runner.
	mRunner2 := &runnermock.MockStepRunner{}
	mRunner2.On("Run", mock.Anything, "custom-run", mock.Anything).Return(&model.StepRecord{}, nil)
	svc2 := newService(t, mRunner2)

	resp3, err := svc2.Run(context.Background(), runpipeline.Request{Pipeline: pipeline, RunID: "custom-run"})
	require.NoError(t, err)
	assert.Equal("custom-run", resp3.RunID)
	mRunner2.AssertExpectations(t)
}

func TestServiceRunHaltsOnFailure(t *testing.T) {
	assert := assert.New(t)

	mRunner := &runnermock.MockStepRunner{}
	mRunner.On("Run", mock.Anything, mock.Anything, mock.MatchedBy(func(s model.StepSpec) bool {
		return s.Name == "fails"
	})).Return(&model.StepRecord{Name: "fails", ExitStatus: 2}, nil)

	svc := newService(t, mRunner)

	resp, err := svc.Run(context.Background(), runpipeline.Request{
		Pipeline: model.Pipeline{
			Name: "halts",
			Stages: []model.Stage{
				{Name: "first", Steps: []model.StepSpec{step("fails")}},
				{Name: "second", Steps: []model.StepSpec{step("never-runs")}},
			},
		},
	})

	var stepErr model.StepFailedError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal("fails", stepErr.StepName)
	assert.Equal(2, stepErr.ExitStatus)

	// Only the failed step ran; its record is still returned.
	require.Len(t, resp.Records, 1)
	assert.Equal("fails", resp.Records[0].Name)
	mRunner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.MatchedBy(func(s model.StepSpec) bool {
		return s.Name == "never-runs"
	}))
}

func TestServiceRunAllowFailureContinues(t *testing.T) {
	assert := assert.New(t)

	mRunner := &runnermock.MockStepRunner{}
	mRunner.On("Run", mock.Anything, mock.Anything, mock.MatchedBy(func(s model.StepSpec) bool {
		return s.Name == "flaky"
	})).Return(&model.StepRecord{Name: "flaky", ExitStatus: 1}, nil)
	mRunner.On("Run", mock.Anything, mock.Anything, mock.MatchedBy(func(s model.StepSpec) bool {
		return s.Name == "after"
	})).Return(&model.StepRecord{Name: "after", ExitStatus: 0}, nil)

	svc := newService(t, mRunner)

	resp, err := svc.Run(context.Background(), runpipeline.Request{
		Pipeline: model.Pipeline{
			Name: "tolerant",
			Stages: []model.Stage{
				{Name: "first", Steps: []model.StepSpec{
					{Name: "flaky", Command: []string{"false"}, AllowFailure: true},
				}},
				{Name: "second", Steps: []model.StepSpec{step("after")}},
			},
		},
	})

	require.NoError(t, err)
	assert.Len(resp.Records, 2)
	mRunner.AssertExpectations(t)
}

func TestServiceRunInfraErrorStops(t *testing.T) {
	assert := assert.New(t)

	mRunner := &runnermock.MockStepRunner{}
	mRunner.On("Run", mock.Anything, mock.Anything, mock.MatchedBy(func(s model.StepSpec) bool {
		return s.Name == "broken"
	})).Return(nil, errors.New("spawn failed"))

	svc := newService(t, mRunner)

	resp, err := svc.Run(context.Background(), runpipeline.Request{
		Pipeline: model.Pipeline{
			Name: "infra",
			Stages: []model.Stage{
				{Name: "first", Steps: []model.StepSpec{step("broken")}},
				{Name: "second", Steps: []model.StepSpec{step("never-runs")}},
			},
		},
	})

	require.Error(t, err)
	assert.NotErrorAs(err, &model.StepFailedError{})
	assert.Empty(resp.Records)
}

func TestServiceRunFanOut(t *testing.T) {
	assert := assert.New(t)

	// Track concurrency: with max parallelism 2 the stage's steps must never
	// overlap more than two at a time.
	var (
		mu      sync.Mutex
		current int
		peak    int
	)
	mRunner := &runnermock.MockStepRunner{}
	mRunner.On("Run", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()

		time.Sleep(30 * time.Millisecond)

		mu.Lock()
		current--
		mu.Unlock()
	}).Return(&model.StepRecord{}, nil)

	svc := newService(t, mRunner)

	resp, err := svc.Run(context.Background(), runpipeline.Request{
		Pipeline: model.Pipeline{
			Name:           "parallel",
			MaxParallelism: 2,
			Stages: []model.Stage{
				{Name: "fan", Steps: []model.StepSpec{step("a"), step("b"), step("c"), step("d")}},
			},
		},
	})

	require.NoError(t, err)
	assert.Len(resp.Records, 4)
	assert.LessOrEqual(peak, 2)
}

func TestServiceRunInvalidPipeline(t *testing.T) {
	svc := newService(t, &runnermock.MockStepRunner{})

	_, err := svc.Run(context.Background(), runpipeline.Request{
		Pipeline: model.Pipeline{Name: "empty"},
	})

	assert.ErrorIs(t, err, model.ErrNotValid)
}

func TestServiceConfigValidation(t *testing.T) {
	_, err := runpipeline.NewService(runpipeline.ServiceConfig{})
	assert.Error(t, err)
}
