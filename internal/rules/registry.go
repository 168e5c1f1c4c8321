package rules

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

// DefaultDebounce is the quiet period applied to rules that do not
// configure their own debounce window.
const DefaultDebounce = 500 * time.Millisecond

// PatternError reports a watch pattern that failed to compile. It is a
// configuration error: registration rejects the pattern so that matching
// can never fail at event time.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid watch pattern %q: %v", e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }

// Rule associates a compiled pattern with a rebuild action. Rules are
// immutable after registration; their only identity is their position in
// the registry.
type Rule struct {
	// Pattern is the original glob or exact path, slash-separated,
	// matched against paths relative to the watch root.
	Pattern string

	// Action is the rebuild step to run when the pattern matches.
	Action Action

	// Debounce is the quiet period for this rule's triggers.
	Debounce time.Duration

	matcher glob.Glob
}

// Matches reports whether path matches the rule's pattern. The path is
// normalized to forward slashes before matching.
func (r *Rule) Matches(path string) bool {
	return r.matcher.Match(NormalizePath(path))
}

// RuleOption configures a rule at registration time.
type RuleOption func(*Rule)

// WithDebounce overrides the default debounce window for a rule.
func WithDebounce(d time.Duration) RuleOption {
	return func(r *Rule) {
		r.Debounce = d
	}
}

// Registry is an ordered, write-once collection of watch rules.
// Register all rules at startup, then share the registry read-only with
// the watch loop; Match takes no locks.
type Registry struct {
	rules []*Rule
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register compiles pattern and appends a rule. Registration order is
// evaluation order. A malformed pattern or nil action fails here with a
// *PatternError; it never fails at match time. Duplicate and overlapping
// patterns are allowed and are not merged.
func (reg *Registry) Register(pattern string, action Action, opts ...RuleOption) error {
	if strings.TrimSpace(pattern) == "" {
		return &PatternError{Pattern: pattern, Err: fmt.Errorf("pattern is empty")}
	}

	if action == nil {
		return &PatternError{Pattern: pattern, Err: fmt.Errorf("rule has no action")}
	}

	if cb, ok := action.(CallbackAction); ok && cb.Fn == nil {
		return &PatternError{Pattern: pattern, Err: fmt.Errorf("callback %q is nil", cb.Name)}
	}

	pattern = NormalizePath(pattern)

	// `*` stays within one path segment, `**` crosses segments.
	matcher, err := glob.Compile(pattern, '/')
	if err != nil {
		return &PatternError{Pattern: pattern, Err: err}
	}

	rule := &Rule{
		Pattern:  pattern,
		Action:   action,
		Debounce: DefaultDebounce,
		matcher:  matcher,
	}

	for _, opt := range opts {
		opt(rule)
	}

	reg.rules = append(reg.rules, rule)

	return nil
}

// Match returns every rule whose pattern matches path, in registration
// order. A path matching no rule returns an empty slice.
func (reg *Registry) Match(path string) []*Rule {
	var matched []*Rule

	for _, rule := range reg.rules {
		if rule.Matches(path) {
			matched = append(matched, rule)
		}
	}

	return matched
}

// Rules returns all registered rules in registration order. The returned
// slice is shared; callers must not mutate it.
func (reg *Registry) Rules() []*Rule {
	return reg.rules
}

// Len returns the number of registered rules.
func (reg *Registry) Len() int {
	return len(reg.rules)
}

// NormalizePath converts path to the slash-separated relative form used
// for pattern matching.
func NormalizePath(path string) string {
	path = filepath.ToSlash(path)
	path = strings.TrimPrefix(path, "./")

	return path
}
