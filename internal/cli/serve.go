package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/relodev/relo/internal/config"
	"github.com/relodev/relo/internal/dispatch"
	"github.com/relodev/relo/internal/logging"
	"github.com/relodev/relo/internal/server"
	"github.com/relodev/relo/internal/watch"
)

type serveOptions struct {
	manifestFile string
	root         string
	dir          string
	addr         string
	initialBuild bool
}

func newServeCommand() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Watch sources, rebuild on change, and serve the output",
		Long: `Serve starts the full development loop described by the project
manifest (relo.yaml by default):

1. watch the source root for file changes,
2. re-run the build command of every rule whose pattern matches, in
   manifest order, debouncing rapid saves into one rebuild,
3. serve the output directory over HTTP, and
4. tell connected browsers to reload after each successful rebuild.

A failing build command is reported and the loop keeps running; fix the
source and save again to retry. Stop with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.manifestFile, "file", "f", config.DefaultManifestFile, "project manifest file")
	f.StringVar(&opts.root, "root", "", "watch root (overrides manifest)")
	f.StringVar(&opts.dir, "dir", "", "directory to serve (overrides manifest)")
	f.StringVar(&opts.addr, "addr", "", "listen address (overrides manifest)")
	f.BoolVar(&opts.initialBuild, "initial-build", true, "run every rule once before watching")

	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	ctx := cmd.Context()
	logger := logging.FromContext(ctx)

	manifest, err := config.LoadManifest(opts.manifestFile)
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	applyOverrides(manifest, opts)

	if err := checkDir("watch root", manifest.Root); err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	if err := checkDir("serve directory", manifest.Serve.Dir); err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	registry, err := buildRegistry(manifest)
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	hub := server.NewHub(logger)

	executor := dispatch.NewLocalExecutor(
		dispatch.WithWorkDir(manifest.Root),
		dispatch.WithOutput(cmd.ErrOrStderr()),
		dispatch.WithExecutorLogger(logger),
	)

	disp := dispatch.New(registry, executor,
		dispatch.WithLogger(logger),
		dispatch.WithStatusWriter(cmd.ErrOrStderr()),
		dispatch.WithNotify(hub.Broadcast),
	)
	defer disp.Stop()

	// Trap SIGINT / SIGTERM for graceful shutdown.
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runCtx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	if opts.initialBuild {
		disp.RunAll(runCtx)
	}

	srv := server.New(manifest.Serve.Dir, manifest.Serve.Addr, hub, logger)

	wopts := watch.DefaultOptions()
	wopts.Root = manifest.Root
	wopts.Logger = logger
	wopts.Out = cmd.ErrOrStderr()

	errc := make(chan error, 2)

	go func() {
		errc <- srv.Start(runCtx)
	}()

	go func() {
		errc <- watch.Run(runCtx, wopts, func(tctx context.Context, path string, ts time.Time) {
			disp.Trigger(tctx, dispatch.ChangeEvent{Path: path, Time: ts})
		})
	}()

	// Whichever side stops first (fatal error, or nil after a signal)
	// takes the other one down with it.
	runErr := <-errc
	cancel()
	<-errc

	return runErr
}

// applyOverrides copies non-empty flag values over the manifest.
func applyOverrides(m *config.Manifest, opts *serveOptions) {
	if opts.root != "" {
		// When only --root is given and the manifest left serve.dir at
		// its root default, keep the two aligned.
		if m.Serve.Dir == m.Root {
			m.Serve.Dir = opts.root
		}

		m.Root = opts.root
	}

	if opts.dir != "" {
		m.Serve.Dir = opts.dir
	}

	if opts.addr != "" {
		m.Serve.Addr = opts.addr
	}
}

// checkDir verifies that path exists and is a readable directory.
func checkDir(what, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s %q: %w", what, path, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%s %q: not a directory", what, path)
	}

	return nil
}
