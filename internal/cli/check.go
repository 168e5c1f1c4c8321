package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relodev/relo/internal/config"
)

type checkOptions struct {
	manifestFile string
	matchPath    string
}

func newCheckCommand() *cobra.Command {
	opts := &checkOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a project manifest",
		Long: `Check loads the project manifest, compiles every watch pattern, and
reports problems without starting the server.

With --match, check additionally shows which rules a given path would
trigger, in the order their commands would run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.manifestFile, "file", "f", config.DefaultManifestFile, "project manifest file")
	f.StringVar(&opts.matchPath, "match", "", "show the rules a path would trigger")

	return cmd
}

func runCheck(cmd *cobra.Command, opts *checkOptions) error {
	manifest, err := config.LoadManifest(opts.manifestFile)
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	registry, err := buildRegistry(manifest)
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "root:  %s\n", manifest.Root)
	fmt.Fprintf(out, "serve: %s on %s\n", manifest.Serve.Dir, manifest.Serve.Addr)
	fmt.Fprintf(out, "rules:\n")

	for i, rule := range registry.Rules() {
		fmt.Fprintf(out, "  %d. %-24s %s\n", i+1, rule.Pattern, rule.Action.Describe())
	}

	if opts.matchPath != "" {
		matched := registry.Match(opts.matchPath)

		if len(matched) == 0 {
			fmt.Fprintf(out, "\n%s matches no rules\n", opts.matchPath)
		} else {
			fmt.Fprintf(out, "\n%s triggers:\n", opts.matchPath)

			for _, rule := range matched {
				fmt.Fprintf(out, "  %s\n", rule.Action.Describe())
			}
		}
	}

	fmt.Fprintf(out, "\nManifest OK (%d rules)\n", registry.Len())

	return nil
}
