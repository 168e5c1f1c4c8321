package rules

import (
	"context"
	"fmt"
)

// Action is a rebuild step bound to a watch rule. It is a closed variant:
// either a shell command (ShellAction) or an in-process function
// (CallbackAction). Execution lives in the dispatch package; rules only
// carries the definition.
type Action interface {
	// Describe returns a short human-readable label used in logs and
	// status lines.
	Describe() string

	sealed()
}

// ShellAction runs an external command through the system shell.
type ShellAction struct {
	// Command is the shell command line, executed as `sh -c <Command>`.
	Command string

	// CaptureTo, when non-empty, is a file path that receives the
	// command's standard output instead of the operator console.
	CaptureTo string
}

// Describe returns the command line, annotated with the capture target
// when one is configured.
func (a ShellAction) Describe() string {
	if a.CaptureTo != "" {
		return fmt.Sprintf("sh: %s > %s", a.Command, a.CaptureTo)
	}

	return "sh: " + a.Command
}

func (ShellAction) sealed() {}

// CallbackAction invokes a Go function in-process.
type CallbackAction struct {
	// Name identifies the callback in logs.
	Name string

	// Fn is the function to invoke. A nil Fn fails at registration time.
	Fn func(ctx context.Context) error
}

// Describe returns the callback's name.
func (a CallbackAction) Describe() string {
	return "callback: " + a.Name
}

func (CallbackAction) sealed() {}
