package lib_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdklib "github.com/pipemeter/pipemeter/pkg/lib"
	intlib "github.com/pipemeter/pipemeter/test/integration/lib"
)

func TestSDKStepMeasurement(t *testing.T) {
	intlib.NewConfig(t)
	client := intlib.NewTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	name := intlib.UniqueName("sdk-measure")

	// Run a real command long enough for the sampler to land a few samples.
	record, err := client.RunStep(ctx, sdklib.StepSpec{
		Name:    name,
		Command: []string{"sh", "-c", "dd if=/dev/zero of=/dev/null bs=1M count=512; sleep 1"},
	})
	require.NoError(t, err)

	assert.Equal(t, name, record.Name)
	assert.Equal(t, 0, record.ExitStatus)
	assert.Greater(t, record.PeakMemoryBytes, uint64(0))
	assert.False(t, record.EndTime.Before(record.StartTime))
}

func TestSDKPipelineRun(t *testing.T) {
	intlib.NewConfig(t)
	client := intlib.NewTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := client.RunPipeline(ctx, sdklib.Pipeline{
		Name:           "integration",
		MaxParallelism: 2,
		Stages: []sdklib.Stage{
			{Name: "prepare", Steps: []sdklib.StepSpec{
				{Name: "prepare-data", Command: []string{"sleep", "0.2"}},
			}},
			{Name: "process", Steps: []sdklib.StepSpec{
				{Name: "process-a", Command: []string{"sleep", "0.2"}},
				{Name: "process-b", Command: []string{"sleep", "0.2"}},
			}},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Records, 3)

	// All records carry the run ID and landed in the ledger.
	records, err := client.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for _, r := range records {
		assert.Equal(t, result.RunID, r.RunID)
	}

	// The summary is recomputable from the ledger.
	summary, err := client.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.StepCount)
	assert.Equal(t, 0, summary.FailedCount)
	assert.Greater(t, summary.TotalWallSeconds, 0.0)
}

func TestSDKPipelineFailureStops(t *testing.T) {
	intlib.NewConfig(t)
	client := intlib.NewTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	_, err := client.RunPipeline(ctx, sdklib.Pipeline{
		Name: "failing",
		Stages: []sdklib.Stage{
			{Name: "first", Steps: []sdklib.StepSpec{
				{Name: "fails", Command: []string{"sh", "-c", "exit 9"}},
			}},
			{Name: "second", Steps: []sdklib.StepSpec{
				{Name: "never-runs", Command: []string{"true"}},
			}},
		},
	})

	var stepErr sdklib.StepFailedError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "fails", stepErr.StepName)
	assert.Equal(t, 9, stepErr.ExitStatus)

	// Only the failed step is in the ledger.
	records, err := client.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "fails", records[0].Name)
}
