package lib

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	sdklib "github.com/pipemeter/pipemeter/pkg/lib"
)

// NewConfig checks the integration test activation environment variable.
// If it is not set, the test is skipped.
func NewConfig(t *testing.T) {
	t.Helper()

	const envActivation = "PIPEMETER_INTEGRATION"

	if os.Getenv(envActivation) != "true" {
		t.Skipf("Skipping integration test: %s is not set to 'true'", envActivation)
	}
}

// UniqueName generates a unique step name for test isolation.
func UniqueName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// NewTestClient creates an SDK client with a temp SQLite DB for test isolation.
func NewTestClient(t *testing.T) *sdklib.Client {
	t.Helper()

	dir := t.TempDir()
	ctx := context.Background()

	client, err := sdklib.New(ctx, sdklib.Config{
		DBPath:         filepath.Join(dir, "test.db"),
		LogDir:         filepath.Join(dir, "logs"),
		SampleInterval: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}
