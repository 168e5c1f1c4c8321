package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/relodev/relo/internal/rules"
)

// ChangeEvent is a filesystem change delivered by the watcher. Path is
// relative to the watch root, slash-separated.
type ChangeEvent struct {
	Path string
	Time time.Time
}

// NotifyFunc is called after a dispatch in which at least one action
// succeeded, e.g. to tell connected browsers to reload.
type NotifyFunc func(path string)

// Dispatcher routes change events to the actions of every matching rule.
// Events are debounced per matched rule set; actions within a dispatch
// run strictly in registration order, and dispatches never overlap, so a
// compile step always finishes before a copy step that follows it.
type Dispatcher struct {
	registry *rules.Registry
	executor Executor
	logger   *slog.Logger
	out      io.Writer
	notify   NotifyFunc

	// runMu serializes all action execution.
	runMu sync.Mutex

	// coMu guards the coalescer table.
	coMu       sync.Mutex
	coalescers map[string]*Coalescer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithStatusWriter sets the writer for per-dispatch status lines.
func WithStatusWriter(w io.Writer) Option {
	return func(d *Dispatcher) {
		d.out = w
	}
}

// WithNotify registers a post-dispatch notification hook.
func WithNotify(fn NotifyFunc) Option {
	return func(d *Dispatcher) {
		d.notify = fn
	}
}

// New creates a dispatcher over registry using executor to run actions.
func New(registry *rules.Registry, executor Executor, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:   registry,
		executor:   executor,
		logger:     slog.Default(),
		out:        io.Discard,
		coalescers: make(map[string]*Coalescer),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Trigger matches ev against the registry and arms the debounce window
// for the matched rule set. It returns the number of matched rules and
// never blocks on action execution. ctx bounds the eventual dispatch;
// pass the watch loop's lifetime context.
func (d *Dispatcher) Trigger(ctx context.Context, ev ChangeEvent) int {
	matched := d.registry.Match(ev.Path)
	if len(matched) == 0 {
		d.logger.Debug("change matched no rules", slog.String("path", ev.Path))
		return 0
	}

	key, window := triggerKey(d.registry, matched)

	d.coMu.Lock()
	co, ok := d.coalescers[key]
	if !ok {
		co = NewCoalescer(window, func(path string) {
			d.run(ctx, path, matched)
		})
		d.coalescers[key] = co
	}
	d.coMu.Unlock()

	co.Trigger(ev.Path)

	return len(matched)
}

// RunAll executes every registered rule's action once, in registration
// order. Used for the initial build before watching begins.
func (d *Dispatcher) RunAll(ctx context.Context) {
	d.run(ctx, "(initial)", d.registry.Rules())
}

// Stop cancels all pending dispatches. Dispatches already running finish
// normally.
func (d *Dispatcher) Stop() {
	d.coMu.Lock()
	defer d.coMu.Unlock()

	for _, co := range d.coalescers {
		co.Stop()
	}
}

// run executes the matched actions serially. A failing action is logged
// and does not stop later actions or later triggers; the operator
// retries by re-editing the file.
func (d *Dispatcher) run(ctx context.Context, path string, matched []*rules.Rule) {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	if ctx.Err() != nil {
		return
	}

	succeeded := 0

	for _, rule := range matched {
		now := time.Now().Format("15:04:05")

		if err := d.executor.Execute(ctx, rule.Action); err != nil {
			fmt.Fprintf(d.out, "[%s] %s → ERROR: %v\n", now, path, err)
			d.logger.Error("action failed",
				slog.String("path", path),
				slog.String("action", rule.Action.Describe()),
				slog.String("error", err.Error()),
			)

			continue
		}

		succeeded++

		fmt.Fprintf(d.out, "[%s] %s → OK (%s)\n", now, path, rule.Action.Describe())
	}

	if succeeded > 0 && d.notify != nil {
		d.notify(path)
	}
}

// triggerKey identifies a matched rule set by the registry positions of
// its members. The set's debounce window is the largest window among its
// rules, so a slow rule is never dispatched more often than configured.
func triggerKey(reg *rules.Registry, matched []*rules.Rule) (string, time.Duration) {
	all := reg.Rules()

	index := make(map[*rules.Rule]int, len(all))
	for i, r := range all {
		index[r] = i
	}

	var (
		b      strings.Builder
		window time.Duration
	)

	for i, r := range matched {
		if i > 0 {
			b.WriteByte('|')
		}

		b.WriteString(strconv.Itoa(index[r]))

		if r.Debounce > window {
			window = r.Debounce
		}
	}

	return b.String(), window
}
