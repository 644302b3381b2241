package sampler_test

import (
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipemeter/pipemeter/internal/sampler"
)

func TestProcSamplerConfig(t *testing.T) {
	tests := map[string]struct {
		config sampler.ProcSamplerConfig
		expErr bool
	}{
		"An empty config should use defaults": {
			config: sampler.ProcSamplerConfig{},
			expErr: false,
		},

		"A custom interval should be accepted": {
			config: sampler.ProcSamplerConfig{Interval: 50 * time.Millisecond},
			expErr: false,
		},

		"A negative interval should fail": {
			config: sampler.ProcSamplerConfig{Interval: -1 * time.Second},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := sampler.NewProcSampler(test.config)

			if test.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProcSamplerInvalidPgid(t *testing.T) {
	s, err := sampler.NewProcSampler(sampler.ProcSamplerConfig{})
	require.NoError(t, err)

	_, err = s.Start(0)
	assert.Error(t, err)

	_, err = s.Start(-1)
	assert.Error(t, err)
}

func TestProcSamplerLiveGroup(t *testing.T) {
	assert := assert.New(t)

	// Run a short sleep in its own process group, the way the step runner
	// launches commands.
	cmd := exec.Command("sleep", "2")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	require.NoError(t, cmd.Start())
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	s, err := sampler.NewProcSampler(sampler.ProcSamplerConfig{Interval: 20 * time.Millisecond})
	require.NoError(t, err)

	handle, err := s.Start(cmd.Process.Pid)
	require.NoError(t, err)

	// Let a few samples land.
	time.Sleep(200 * time.Millisecond)
	summary := handle.Stop()

	assert.Greater(summary.Samples, 0)
	assert.Greater(summary.PeakMemoryBytes, uint64(0))
	assert.GreaterOrEqual(summary.AverageCPUPercent, 0.0)
}

func TestProcSamplerGroupAlreadyGone(t *testing.T) {
	assert := assert.New(t)

	// Start and reap a process so its pgid no longer exists.
	cmd := exec.Command("true")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	require.NoError(t, cmd.Start())
	pgid := cmd.Process.Pid
	require.NoError(t, cmd.Wait())

	s, err := sampler.NewProcSampler(sampler.ProcSamplerConfig{Interval: 10 * time.Millisecond})
	require.NoError(t, err)

	handle, err := s.Start(pgid)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	summary := handle.Stop()

	// No samples means a zero summary, not garbage.
	assert.Equal(0, summary.Samples)
	assert.Equal(uint64(0), summary.PeakMemoryBytes)
	assert.Equal(0.0, summary.AverageCPUPercent)
}

func TestProcSamplerStopIdempotent(t *testing.T) {
	assert := assert.New(t)

	cmd := exec.Command("sleep", "1")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	require.NoError(t, cmd.Start())
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	s, err := sampler.NewProcSampler(sampler.ProcSamplerConfig{Interval: 10 * time.Millisecond})
	require.NoError(t, err)

	handle, err := s.Start(cmd.Process.Pid)
	require.NoError(t, err)

	first := handle.Stop()
	second := handle.Stop()
	assert.Equal(first, second)
}
