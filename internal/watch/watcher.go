package watch

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// TriggerFunc receives one filesystem change. path is relative to the
// watched root, slash-separated. Implementations must not block: the
// dispatcher debounces and executes on its own timers.
type TriggerFunc func(ctx context.Context, path string, ts time.Time)

// Options configures the watch loop.
type Options struct {
	// Root is the source directory to watch recursively.
	Root string

	// Logger is used for structured logging.
	Logger *slog.Logger

	// Out is the writer for user-facing status messages.
	Out io.Writer
}

// DefaultOptions returns sensible default watch options.
func DefaultOptions() Options {
	return Options{
		Logger: slog.Default(),
		Out:    os.Stderr,
	}
}

// Run starts the filesystem watcher and blocks until ctx is cancelled
// (graceful shutdown, nil error) or the notification subsystem fails
// (fatal, since no further change events can be delivered). Each
// relevant event is forwarded to trigger.
func Run(ctx context.Context, opts Options, trigger TriggerFunc) error {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Out == nil {
		opts.Out = io.Discard
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return fmt.Errorf("resolving watch root %q: %w", opts.Root, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// Walk the root and add all subdirectories.
	if err := addRecursive(watcher, root); err != nil {
		return fmt.Errorf("watching root directory: %w", err)
	}

	fmt.Fprintf(opts.Out, "watching %s\n", root)

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(opts.Out, "\nshutting down watcher")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if !isRelevant(event) {
				continue
			}

			// If a new directory was created, watch it too.
			if event.Has(fsnotify.Create) {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					_ = addRecursive(watcher, event.Name)
					continue
				}
			}

			trigger(ctx, relativeTo(root, event.Name), time.Now())

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			// Without change events the loop is useless, so a subsystem
			// failure ends the process rather than silently idling.
			opts.Logger.Error("watcher error", slog.String("error", watchErr.Error()))

			return fmt.Errorf("filesystem watcher failed: %w", watchErr)
		}
	}
}

// relativeTo rewrites path relative to root for rule matching. Paths
// outside the root are returned unchanged.
func relativeTo(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}

	return filepath.ToSlash(rel)
}

// addRecursive walks root and adds all directories to the watcher.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			// Skip hidden directories (e.g., .git).
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}

			return watcher.Add(path)
		}

		return nil
	})
}

// isRelevant filters out events that should never trigger a rebuild.
func isRelevant(event fsnotify.Event) bool {
	if event.Op == 0 {
		return false
	}

	// Only care about write, create, remove, rename.
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}

	name := filepath.Base(event.Name)

	// Ignore editor temporary files and hidden files.
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") ||
		strings.HasSuffix(name, ".swp") || strings.HasPrefix(name, "#") {
		return false
	}

	return true
}
