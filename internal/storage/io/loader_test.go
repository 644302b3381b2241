package io_test

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipemeter/pipemeter/internal/model"
	storageio "github.com/pipemeter/pipemeter/internal/storage/io"
)

func TestGetPipeline(t *testing.T) {
	tests := map[string]struct {
		yaml        string
		expPipeline model.Pipeline
		expErr      bool
		expIs       error
	}{
		"A full pipeline declaration should load.": {
			yaml: `
name: microbiome-run
max_parallelism: 3
stages:
  - name: import
    steps:
      - name: import-reads
        command: ["qiime", "tools", "import"]
        working_dir: /data
        env:
          TMPDIR: /scratch
  - name: denoise
    steps:
      - name: denoise-gut
        command: ["qiime", "dada2", "denoise-paired"]
      - name: denoise-oral
        command: ["qiime", "dada2", "denoise-paired"]
        allow_failure: true
`,
			expPipeline: model.Pipeline{
				Name:           "microbiome-run",
				MaxParallelism: 3,
				Stages: []model.Stage{
					{Name: "import", Steps: []model.StepSpec{
						{
							Name:       "import-reads",
							Command:    []string{"qiime", "tools", "import"},
							WorkingDir: "/data",
							Env:        map[string]string{"TMPDIR": "/scratch"},
						},
					}},
					{Name: "denoise", Steps: []model.StepSpec{
						{Name: "denoise-gut", Command: []string{"qiime", "dada2", "denoise-paired"}},
						{Name: "denoise-oral", Command: []string{"qiime", "dada2", "denoise-paired"}, AllowFailure: true},
					}},
				},
			},
		},

		"Omitted max_parallelism should default to sequential.": {
			yaml: `
name: simple
stages:
  - name: only
    steps:
      - name: step
        command: ["true"]
`,
			expPipeline: model.Pipeline{
				Name:           "simple",
				MaxParallelism: 1,
				Stages: []model.Stage{
					{Name: "only", Steps: []model.StepSpec{
						{Name: "step", Command: []string{"true"}},
					}},
				},
			},
		},

		"Invalid YAML should fail.": {
			yaml:   `name: [unclosed`,
			expErr: true,
		},

		"A declaration that fails validation should fail.": {
			yaml: `
name: bad
stages:
  - name: only
    steps:
      - name: no-command
`,
			expErr: true,
			expIs:  model.ErrNotValid,
		},

		"Duplicated step names should fail.": {
			yaml: `
name: bad
stages:
  - name: first
    steps:
      - name: dup
        command: ["true"]
  - name: second
    steps:
      - name: dup
        command: ["true"]
`,
			expErr: true,
			expIs:  model.ErrNotValid,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			fsys := fstest.MapFS{
				"pipeline.yaml": &fstest.MapFile{Data: []byte(test.yaml)},
			}
			repo := storageio.NewPipelineYAMLRepository(fsys)

			pipeline, err := repo.GetPipeline(context.Background(), "pipeline.yaml")

			if test.expErr {
				assert.Error(err)
				if test.expIs != nil {
					assert.True(errors.Is(err, test.expIs))
				}
			} else {
				require.NoError(t, err)
				assert.Equal(test.expPipeline, pipeline)
			}
		})
	}
}

func TestGetPipelineMissingFile(t *testing.T) {
	repo := storageio.NewPipelineYAMLRepository(fstest.MapFS{})

	_, err := repo.GetPipeline(context.Background(), "nope.yaml")
	assert.Error(t, err)
}
