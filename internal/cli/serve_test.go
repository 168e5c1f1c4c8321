package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Startup configuration errors → exit code 2
// ---------------------------------------------------------------------------

func TestServe_MissingManifest(t *testing.T) {
	_, _, err := executeCommand("serve", "-f", "/nonexistent/relo.yaml")
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
	assert.Contains(t, err.Error(), "reading manifest")
}

func TestServe_UnreadableRoot(t *testing.T) {
	p := writeManifestFile(t, `
root: /nonexistent/source/tree
watch:
  - pattern: "*.pug"
    run: pug site
`)

	_, _, err := executeCommand("serve", "-f", p)
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
	assert.Contains(t, err.Error(), "watch root")
}

func TestServe_RootIsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	p := writeManifestFile(t, fmt.Sprintf(`
root: %s
watch:
  - pattern: "*.pug"
    run: pug site
`, file))

	_, _, err := executeCommand("serve", "-f", p)
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestServe_MalformedPattern(t *testing.T) {
	dir := t.TempDir()

	p := writeManifestFile(t, fmt.Sprintf(`
root: %s
watch:
  - pattern: "[unclosed"
    run: pug site
`, dir))

	_, _, err := executeCommand("serve", "-f", p)
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}

// ---------------------------------------------------------------------------
// Full loop
// ---------------------------------------------------------------------------

func TestServe_GracefulShutdown(t *testing.T) {
	root := t.TempDir()
	marker := filepath.Join(t.TempDir(), "built")

	p := writeManifestFile(t, fmt.Sprintf(`
root: %s
serve:
  addr: 127.0.0.1:0
watch:
  - pattern: "**"
    run: "echo ok > %s"
`, root, marker))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, _, err := executeCommandContext(ctx, "serve", "-f", p)
		done <- err
	}()

	// Give the loop time to start (and run the initial build), then
	// shut it down via context cancellation.
	time.Sleep(500 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err, "context shutdown is graceful")
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not shut down in time")
	}

	// The initial build ran the rule once.
	_, statErr := os.Stat(marker)
	assert.NoError(t, statErr, "initial build should have produced the marker file")
}

func TestServe_NoInitialBuild(t *testing.T) {
	root := t.TempDir()
	marker := filepath.Join(t.TempDir(), "built")

	p := writeManifestFile(t, fmt.Sprintf(`
root: %s
serve:
  addr: 127.0.0.1:0
watch:
  - pattern: "**"
    run: "echo ok > %s"
`, root, marker))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, _, err := executeCommandContext(ctx, "serve", "-f", p, "--initial-build=false")
		done <- err
	}()

	time.Sleep(500 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not shut down in time")
	}

	_, statErr := os.Stat(marker)
	assert.True(t, os.IsNotExist(statErr), "no build should run without --initial-build")
}
