// Package watch drives relo's filesystem event loop. It monitors a
// source root recursively, filters out editor noise, and delivers
// change events (paths relative to the root) to the rebuild dispatcher.
package watch
