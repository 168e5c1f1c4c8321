// Package dispatch turns matched watch rules into rebuild runs. It
// coalesces rapid change events into single triggers, executes the
// matched actions strictly in registration order, and isolates action
// failures so one broken build step cannot stop the watch loop.
package dispatch
