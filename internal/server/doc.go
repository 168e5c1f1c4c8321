// Package server serves the build output directory over HTTP for local
// development. HTML responses get a small client script injected that
// connects to the /livereload WebSocket endpoint; the rebuild dispatcher
// broadcasts on that endpoint after each successful build, so open
// browser tabs refresh on their own.
package server
