// Package rules holds the ordered watch-rule registry at the core of
// relo. Each rule associates a glob pattern with a rebuild action; the
// registry matches filesystem change paths against the rules and
// returns every hit in registration order.
package rules
