package watch

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// isRelevant
// ---------------------------------------------------------------------------

func TestIsRelevant(t *testing.T) {
	tests := []struct {
		name string
		path string
		op   fsnotify.Op
		want bool
	}{
		{"pug write", "index.pug", fsnotify.Write, true},
		{"scss write", "style.scss", fsnotify.Write, true},
		{"create event", "new.js", fsnotify.Create, true},
		{"remove event", "old.js", fsnotify.Remove, true},
		{"rename event", "renamed.js", fsnotify.Rename, true},
		{"hidden file", ".hidden", fsnotify.Write, false},
		{"swap file", "index.swp", fsnotify.Write, false},
		{"backup tilde", "index.pug~", fsnotify.Write, false},
		{"emacs hash", "#index.pug#", fsnotify.Write, false},
		{"zero op", "index.pug", 0, false},
		{"chmod only", "index.pug", fsnotify.Chmod, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := fsnotify.Event{Name: tt.path, Op: tt.op}
			assert.Equal(t, tt.want, isRelevant(event))
		})
	}
}

// ---------------------------------------------------------------------------
// relativeTo
// ---------------------------------------------------------------------------

func TestRelativeTo(t *testing.T) {
	assert.Equal(t, "site/index.pug", relativeTo("/work", "/work/site/index.pug"))
	assert.Equal(t, "index.pug", relativeTo("/work/site", "/work/site/index.pug"))
	assert.Equal(t, "/elsewhere/a.pug", relativeTo("/work", "/elsewhere/a.pug"))
}

// ---------------------------------------------------------------------------
// addRecursive
// ---------------------------------------------------------------------------

func TestAddRecursive_SkipsHiddenDirs(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "site"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "site", "css"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git", "objects"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".cache"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.pug"), []byte("h1 hi"), 0o644))

	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()

	require.NoError(t, addRecursive(watcher, dir))

	watched := make(map[string]bool)
	for _, p := range watcher.WatchList() {
		watched[p] = true
	}

	assert.True(t, watched[dir], "root should be watched")
	assert.True(t, watched[filepath.Join(dir, "site")], "site should be watched")
	assert.True(t, watched[filepath.Join(dir, "site", "css")], "site/css should be watched")
	assert.False(t, watched[filepath.Join(dir, ".git")], ".git should NOT be watched")
	assert.False(t, watched[filepath.Join(dir, ".git", "objects")], ".git/objects should NOT be watched")
	assert.False(t, watched[filepath.Join(dir, ".cache")], ".cache should NOT be watched")
}

func TestAddRecursive_NonExistentDir(t *testing.T) {
	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()

	assert.Error(t, addRecursive(watcher, "/nonexistent/dir/12345"))
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

func TestRun_GracefulShutdown(t *testing.T) {
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())

	opts := DefaultOptions()
	opts.Root = dir
	opts.Out = io.Discard

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, opts, func(context.Context, string, time.Time) {})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not shut down in time")
	}
}

func TestRun_FileChangeDeliversRelativePath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "site"), 0o755))

	target := filepath.Join(dir, "site", "index.pug")
	require.NoError(t, os.WriteFile(target, []byte("h1 hi"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var paths []string

	opts := DefaultOptions()
	opts.Root = dir
	opts.Out = io.Discard

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, opts, func(_ context.Context, path string, _ time.Time) {
			mu.Lock()
			paths = append(paths, path)
			mu.Unlock()
		})
	}()

	// Let the watcher set up, then modify a file.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(target, []byte("h1 bye"), 0o644))
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	got := append([]string(nil), paths...)
	mu.Unlock()

	require.NotEmpty(t, got, "file change should reach the trigger")
	assert.Contains(t, got, "site/index.pug")

	cancel()
	<-done
}

func TestRun_NewDirectoryIsWatched(t *testing.T) {
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var triggerCount atomic.Int32

	opts := DefaultOptions()
	opts.Root = dir
	opts.Out = io.Discard

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, opts, func(context.Context, string, time.Time) {
			triggerCount.Add(1)
		})
	}()

	time.Sleep(200 * time.Millisecond)

	// Create a directory, then a file inside it: the new directory must
	// have been added to the watch set for the file event to arrive.
	sub := filepath.Join(dir, "site")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "index.pug"), []byte("h1 hi"), 0o644))
	time.Sleep(300 * time.Millisecond)

	assert.GreaterOrEqual(t, triggerCount.Load(), int32(1))

	cancel()
	<-done
}

func TestRun_InvalidRoot(t *testing.T) {
	opts := DefaultOptions()
	opts.Root = "/nonexistent/root/12345"
	opts.Out = io.Discard

	err := Run(context.Background(), opts, func(context.Context, string, time.Time) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watching root directory")
}
