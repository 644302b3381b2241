package summarize_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pipemeter/pipemeter/internal/app/summarize"
	"github.com/pipemeter/pipemeter/internal/model"
	"github.com/pipemeter/pipemeter/internal/storage/storagemock"
)

func at(minute, second int) time.Time {
	return time.Date(2026, 8, 1, 10, minute, second, 0, time.UTC)
}

func TestSummarize(t *testing.T) {
	tests := map[string]struct {
		records    []model.StepRecord
		expSummary model.RunSummary
	}{
		"No records should yield an all-zero summary.": {
			records:    nil,
			expSummary: model.RunSummary{},
		},

		"A single record should carry through.": {
			records: []model.StepRecord{
				{
					Name:            "only",
					StartTime:       at(0, 0),
					EndTime:         at(1, 0),
					DurationSeconds: 60,
					PeakMemoryBytes: 1024,
					CPUPercent:      50,
					IOReadBytes:     100,
					IOWriteBytes:    200,
				},
			},
			expSummary: model.RunSummary{
				TotalWallSeconds:     60,
				TotalPeakMemoryBytes: 1024,
				AverageCPUPercent:    50,
				TotalIOReadBytes:     100,
				TotalIOWriteBytes:    200,
				StepCount:            1,
			},
		},

		"Sequential steps should add up their wall time.": {
			records: []model.StepRecord{
				{Name: "a", StartTime: at(0, 0), EndTime: at(1, 0), DurationSeconds: 60},
				{Name: "b", StartTime: at(2, 0), EndTime: at(2, 30), DurationSeconds: 30},
			},
			expSummary: model.RunSummary{
				TotalWallSeconds: 90,
				StepCount:        2,
			},
		},

		"Overlapping parallel steps should not count their overlap twice.": {
			records: []model.StepRecord{
				{Name: "a", StartTime: at(0, 0), EndTime: at(2, 0), DurationSeconds: 120},
				{Name: "b", StartTime: at(1, 0), EndTime: at(3, 0), DurationSeconds: 120},
			},
			expSummary: model.RunSummary{
				TotalWallSeconds: 180,
				StepCount:        2,
			},
		},

		"A step fully contained in another should not extend the wall time.": {
			records: []model.StepRecord{
				{Name: "outer", StartTime: at(0, 0), EndTime: at(5, 0), DurationSeconds: 300},
				{Name: "inner", StartTime: at(1, 0), EndTime: at(2, 0), DurationSeconds: 60},
			},
			expSummary: model.RunSummary{
				TotalWallSeconds: 300,
				StepCount:        2,
			},
		},

		"The CPU average should be weighted by step duration.": {
			records: []model.StepRecord{
				// 100% for 90s and 0% for 10s averages to 90%, not 50%.
				{Name: "busy", StartTime: at(0, 0), EndTime: at(1, 30), DurationSeconds: 90, CPUPercent: 100},
				{Name: "idle", StartTime: at(1, 30), EndTime: at(1, 40), DurationSeconds: 10, CPUPercent: 0},
			},
			expSummary: model.RunSummary{
				TotalWallSeconds:  100,
				AverageCPUPercent: 90,
				StepCount:         2,
			},
		},

		"Failures should be counted.": {
			records: []model.StepRecord{
				{Name: "ok", StartTime: at(0, 0), EndTime: at(0, 10), DurationSeconds: 10},
				{Name: "bad", StartTime: at(0, 10), EndTime: at(0, 20), DurationSeconds: 10, ExitStatus: 1},
				{Name: "worse", StartTime: at(0, 20), EndTime: at(0, 30), DurationSeconds: 10, ExitStatus: 137},
			},
			expSummary: model.RunSummary{
				TotalWallSeconds: 30,
				StepCount:        3,
				FailedCount:      2,
			},
		},

		"Memory and I/O totals should sum across steps.": {
			records: []model.StepRecord{
				{Name: "a", StartTime: at(0, 0), EndTime: at(0, 1), DurationSeconds: 1, PeakMemoryBytes: 100, IOReadBytes: 10, IOWriteBytes: 1},
				{Name: "b", StartTime: at(0, 1), EndTime: at(0, 2), DurationSeconds: 1, PeakMemoryBytes: 200, IOReadBytes: 20, IOWriteBytes: 2},
			},
			expSummary: model.RunSummary{
				TotalWallSeconds:     2,
				TotalPeakMemoryBytes: 300,
				TotalIOReadBytes:     30,
				TotalIOWriteBytes:    3,
				StepCount:            2,
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got := summarize.Summarize(test.records)
			assert.Equal(t, test.expSummary, got)
		})
	}
}

func TestServiceRun(t *testing.T) {
	assert := assert.New(t)

	mLedger := &storagemock.MockLedger{}
	mLedger.On("ListRecords", mock.Anything).Return([]model.StepRecord{
		{Name: "a", StartTime: at(0, 0), EndTime: at(0, 30), DurationSeconds: 30},
	}, nil)

	svc, err := summarize.NewService(summarize.ServiceConfig{Ledger: mLedger})
	require.NoError(t, err)

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(1, summary.StepCount)
	assert.Equal(30.0, summary.TotalWallSeconds)
	mLedger.AssertExpectations(t)
}

func TestServiceRunLedgerError(t *testing.T) {
	mLedger := &storagemock.MockLedger{}
	mLedger.On("ListRecords", mock.Anything).Return(nil, errors.New("db gone"))

	svc, err := summarize.NewService(summarize.ServiceConfig{Ledger: mLedger})
	require.NoError(t, err)

	_, err = svc.Run(context.Background())
	assert.Error(t, err)
}

func TestServiceConfigValidation(t *testing.T) {
	_, err := summarize.NewService(summarize.ServiceConfig{})
	assert.Error(t, err)
}
