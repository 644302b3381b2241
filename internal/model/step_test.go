package model_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pipemeter/pipemeter/internal/model"
)

func TestStepSpecValidate(t *testing.T) {
	tests := map[string]struct {
		spec   model.StepSpec
		expErr bool
	}{
		"A valid spec should not fail": {
			spec: model.StepSpec{
				Name:    "denoise",
				Command: []string{"qiime", "dada2", "denoise-paired"},
			},
			expErr: false,
		},

		"A spec with working dir and env should not fail": {
			spec: model.StepSpec{
				Name:       "align",
				Command:    []string{"bwa", "mem", "ref.fa", "reads.fq"},
				WorkingDir: "/data",
				Env:        map[string]string{"THREADS": "8"},
			},
			expErr: false,
		},

		"Missing name should fail": {
			spec: model.StepSpec{
				Command: []string{"true"},
			},
			expErr: true,
		},

		"Empty command should fail": {
			spec: model.StepSpec{
				Name: "nothing",
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			err := test.spec.Validate()

			if test.expErr {
				assert.Error(err)
				assert.True(errors.Is(err, model.ErrNotValid))
			} else {
				assert.NoError(err)
			}
		})
	}
}

func TestStepRecordFailed(t *testing.T) {
	tests := map[string]struct {
		record    model.StepRecord
		expFailed bool
	}{
		"Exit status 0 is a success": {
			record:    model.StepRecord{Name: "ok", ExitStatus: 0},
			expFailed: false,
		},

		"Any non-zero exit status is a failure": {
			record:    model.StepRecord{Name: "boom", ExitStatus: 137},
			expFailed: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expFailed, test.record.Failed())
		})
	}
}

func TestStepFailedError(t *testing.T) {
	assert := assert.New(t)

	err := model.StepFailedError{StepName: "denoise", ExitStatus: 2}

	assert.Equal(`step "denoise" failed with exit status 2`, err.Error())

	var stepErr model.StepFailedError
	assert.True(errors.As(error(err), &stepErr))
	assert.Equal(2, stepErr.ExitStatus)
}
