package cli

import (
	"github.com/relodev/relo/internal/config"
	"github.com/relodev/relo/internal/rules"
)

// buildRegistry compiles the manifest's watch rules into a registry,
// preserving manifest order. A malformed pattern surfaces here, before
// any watching or serving begins.
func buildRegistry(m *config.Manifest) (*rules.Registry, error) {
	reg := rules.NewRegistry()

	for _, rc := range m.Watch {
		action := rules.ShellAction{
			Command:   rc.Run,
			CaptureTo: rc.Output,
		}

		var opts []rules.RuleOption
		if rc.Debounce > 0 {
			opts = append(opts, rules.WithDebounce(rc.Debounce.Std()))
		}

		if err := reg.Register(rc.Pattern, action, opts...); err != nil {
			return nil, err
		}
	}

	return reg, nil
}
