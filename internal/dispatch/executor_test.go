package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relodev/relo/internal/rules"
)

// ---------------------------------------------------------------------------
// Shell actions
// ---------------------------------------------------------------------------

func TestLocalExecutor_ShellSuccess(t *testing.T) {
	var out bytes.Buffer

	e := NewLocalExecutor(WithOutput(&out))

	err := e.Execute(context.Background(), rules.ShellAction{Command: "echo built"})
	require.NoError(t, err)
	assert.Equal(t, "built\n", out.String())
}

func TestLocalExecutor_ShellNonZeroExit(t *testing.T) {
	e := NewLocalExecutor(WithOutput(&bytes.Buffer{}))

	err := e.Execute(context.Background(), rules.ShellAction{Command: "exit 3"})
	require.Error(t, err)

	var actionErr *ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Contains(t, actionErr.Action, "exit 3")
}

func TestLocalExecutor_ShellCaptureToFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out", "style.css")

	e := NewLocalExecutor(WithOutput(&bytes.Buffer{}))

	err := e.Execute(context.Background(), rules.ShellAction{
		Command:   "printf 'body { color: red }'",
		CaptureTo: target,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "body { color: red }", string(data))
}

func TestLocalExecutor_ShellCaptureRelativeToWorkDir(t *testing.T) {
	dir := t.TempDir()

	e := NewLocalExecutor(WithWorkDir(dir), WithOutput(&bytes.Buffer{}))

	err := e.Execute(context.Background(), rules.ShellAction{
		Command:   "echo hello",
		CaptureTo: "greeting.txt",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "greeting.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestLocalExecutor_ShellWorkDir(t *testing.T) {
	dir := t.TempDir()

	var out bytes.Buffer

	e := NewLocalExecutor(WithWorkDir(dir), WithOutput(&out))

	require.NoError(t, e.Execute(context.Background(), rules.ShellAction{Command: "pwd"}))

	got, err := filepath.EvalSymlinks(string(bytes.TrimSpace(out.Bytes())))
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	assert.Equal(t, want, got)
}

// ---------------------------------------------------------------------------
// Callback actions
// ---------------------------------------------------------------------------

func TestLocalExecutor_CallbackSuccess(t *testing.T) {
	called := false

	e := NewLocalExecutor(WithOutput(&bytes.Buffer{}))

	err := e.Execute(context.Background(), rules.CallbackAction{
		Name: "alert",
		Fn: func(context.Context) error {
			called = true
			return nil
		},
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestLocalExecutor_CallbackError(t *testing.T) {
	e := NewLocalExecutor(WithOutput(&bytes.Buffer{}))

	err := e.Execute(context.Background(), rules.CallbackAction{
		Name: "boom",
		Fn: func(context.Context) error {
			return fmt.Errorf("compiler exploded")
		},
	})

	var actionErr *ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.ErrorContains(t, err, "compiler exploded")
}

func TestLocalExecutor_CallbackPanicRecovered(t *testing.T) {
	e := NewLocalExecutor(WithOutput(&bytes.Buffer{}))

	err := e.Execute(context.Background(), rules.CallbackAction{
		Name: "panicky",
		Fn: func(context.Context) error {
			panic("unexpected state")
		},
	})

	var actionErr *ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.ErrorContains(t, err, "panic")
}
