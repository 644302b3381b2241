package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/pipemeter/pipemeter/test/integration/testutils"
)

// Config holds integration test configuration loaded from environment variables.
type Config struct {
	Binary string
}

func (c *Config) defaults() error {
	if c.Binary == "" {
		c.Binary = "pipemeter"
	}

	// If relative, the caller should pass an absolute path via the env var,
	// because go test changes the CWD to the test package directory.
	if !filepath.IsAbs(c.Binary) {
		return fmt.Errorf("PIPEMETER_INTEGRATION_BINARY must be an absolute path, got %q", c.Binary)
	}
	if _, err := os.Stat(c.Binary); err != nil {
		return fmt.Errorf("pipemeter binary not found at %q: %w", c.Binary, err)
	}

	return nil
}

// NewConfig loads integration test configuration from environment variables.
// If the config is invalid or the activation env var is not set, the test is skipped.
func NewConfig(t *testing.T) Config {
	t.Helper()

	const (
		envActivation = "PIPEMETER_INTEGRATION"
		envBinary     = "PIPEMETER_INTEGRATION_BINARY"
	)

	if os.Getenv(envActivation) != "true" {
		t.Skipf("Skipping integration test: %s is not set to 'true'", envActivation)
	}

	c := Config{
		Binary: os.Getenv(envBinary),
	}

	if err := c.defaults(); err != nil {
		t.Skipf("Skipping due to invalid config: %s", err)
	}

	return c
}

// RunPipemeterCmd runs a pipemeter command against a specific ledger and log
// directory. It suppresses logging output for cleaner test output.
func RunPipemeterCmd(ctx context.Context, config Config, ledgerPath, logDir, cmdArgs string) (stdout, stderr []byte, err error) {
	args := fmt.Sprintf("--no-log --ledger %s --log-dir %s %s", ledgerPath, logDir, cmdArgs)
	return testutils.RunPipemeter(ctx, nil, config.Binary, args, true)
}

// RunStep runs a single instrumented step. The command is passed pre-split so
// arguments with spaces survive.
func RunStep(ctx context.Context, config Config, ledgerPath, logDir, name string, command []string) (stdout, stderr []byte, err error) {
	args := []string{"--no-log", "--ledger", ledgerPath, "--log-dir", logDir, "run-step", name, "--"}
	args = append(args, command...)

	return testutils.RunPipemeterArgs(ctx, nil, config.Binary, args, true)
}

// RunPipeline runs a pipeline declaration file.
func RunPipeline(ctx context.Context, config Config, ledgerPath, logDir, pipelinePath string) (stdout, stderr []byte, err error) {
	return RunPipemeterCmd(ctx, config, ledgerPath, logDir, fmt.Sprintf("run %s", pipelinePath))
}

// RunRecords lists ledger records in JSON format.
func RunRecords(ctx context.Context, config Config, ledgerPath, logDir string) (stdout, stderr []byte, err error) {
	return RunPipemeterCmd(ctx, config, ledgerPath, logDir, "records --format json")
}

// RunSummarize prints the run summary in JSON format.
func RunSummarize(ctx context.Context, config Config, ledgerPath, logDir string) (stdout, stderr []byte, err error) {
	return RunPipemeterCmd(ctx, config, ledgerPath, logDir, "summarize --format json")
}

// RunExport exports the ledger to a CSV file.
func RunExport(ctx context.Context, config Config, ledgerPath, logDir, destPath string) (stdout, stderr []byte, err error) {
	return RunPipemeterCmd(ctx, config, ledgerPath, logDir, fmt.Sprintf("export %s", destPath))
}
