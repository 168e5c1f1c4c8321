package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/relodev/relo/internal/rules"
)

// ActionError reports a rebuild action that failed: a non-zero exit
// status, a callback error, or a callback panic. The dispatcher logs it
// and keeps the watch loop running.
type ActionError struct {
	Action string
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %q failed: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// Executor runs a single action to completion.
type Executor interface {
	Execute(ctx context.Context, action rules.Action) error
}

// LocalExecutor runs shell actions through the system shell and callback
// actions in-process. Shell commands inherit the configured working
// directory; their stdout goes to Out unless the action captures it into
// a file.
type LocalExecutor struct {
	shell  string
	dir    string
	out    io.Writer
	logger *slog.Logger
}

// LocalExecutorOption configures a LocalExecutor.
type LocalExecutorOption func(*LocalExecutor)

// WithShell overrides the shell binary (default "sh").
func WithShell(shell string) LocalExecutorOption {
	return func(e *LocalExecutor) {
		e.shell = shell
	}
}

// WithWorkDir sets the working directory for shell commands.
func WithWorkDir(dir string) LocalExecutorOption {
	return func(e *LocalExecutor) {
		e.dir = dir
	}
}

// WithOutput sets the writer receiving uncaptured command output.
func WithOutput(w io.Writer) LocalExecutorOption {
	return func(e *LocalExecutor) {
		e.out = w
	}
}

// WithExecutorLogger sets the executor's logger.
func WithExecutorLogger(logger *slog.Logger) LocalExecutorOption {
	return func(e *LocalExecutor) {
		e.logger = logger
	}
}

// NewLocalExecutor creates an executor with the given options applied.
func NewLocalExecutor(opts ...LocalExecutorOption) *LocalExecutor {
	e := &LocalExecutor{
		shell:  "sh",
		out:    os.Stderr,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Execute runs action to completion and returns an *ActionError on
// failure. It blocks for the action's full duration; there is no timeout
// beyond ctx cancellation at process shutdown.
func (e *LocalExecutor) Execute(ctx context.Context, action rules.Action) error {
	switch a := action.(type) {
	case rules.ShellAction:
		return e.runShell(ctx, a)
	case rules.CallbackAction:
		return e.runCallback(ctx, a)
	default:
		return &ActionError{Action: action.Describe(), Err: fmt.Errorf("unsupported action type %T", action)}
	}
}

// runShell executes `sh -c <command>`, optionally capturing stdout into
// the action's target file.
func (e *LocalExecutor) runShell(ctx context.Context, a rules.ShellAction) error {
	cmd := exec.CommandContext(ctx, e.shell, "-c", a.Command) //nolint:gosec
	cmd.Dir = e.dir
	cmd.Stderr = e.out

	var captured bytes.Buffer
	if a.CaptureTo != "" {
		cmd.Stdout = &captured
	} else {
		cmd.Stdout = e.out
	}

	e.logger.Debug("running shell action",
		slog.String("command", a.Command),
		slog.String("captureTo", a.CaptureTo),
	)

	if err := cmd.Run(); err != nil {
		return &ActionError{Action: a.Describe(), Err: err}
	}

	if a.CaptureTo != "" {
		if err := writeCapture(a.CaptureTo, captured.Bytes(), e.dir); err != nil {
			return &ActionError{Action: a.Describe(), Err: err}
		}
	}

	return nil
}

// runCallback invokes the callback, converting an error return or a
// panic into an *ActionError.
func (e *LocalExecutor) runCallback(ctx context.Context, a rules.CallbackAction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ActionError{Action: a.Describe(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	e.logger.Debug("running callback action", slog.String("name", a.Name))

	if cbErr := a.Fn(ctx); cbErr != nil {
		return &ActionError{Action: a.Describe(), Err: cbErr}
	}

	return nil
}

// writeCapture writes captured stdout to path, resolving relative paths
// against dir and creating parent directories as needed.
func writeCapture(path string, data []byte, dir string) error {
	if !filepath.IsAbs(path) && dir != "" {
		path = filepath.Join(dir, path)
	}

	parent := filepath.Dir(path)
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return fmt.Errorf("creating directory %s: %w", parent, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("writing capture file %s: %w", path, err)
	}

	return nil
}
