package server

import (
	"bytes"
	_ "embed"
)

//go:embed assets/livereload.js
var livereloadJS []byte

var scriptTag = []byte(`<script src="/livereload.js"></script>`)

// injectReloadScript inserts the live-reload script tag into an HTML
// document, preferably just before </body>. Documents without a body
// close tag get the tag appended, which browsers tolerate.
func injectReloadScript(html []byte) []byte {
	idx := lastIndexFold(html, []byte("</body>"))
	if idx < 0 {
		out := make([]byte, 0, len(html)+len(scriptTag)+1)
		out = append(out, html...)
		out = append(out, '\n')
		out = append(out, scriptTag...)

		return out
	}

	out := make([]byte, 0, len(html)+len(scriptTag))
	out = append(out, html[:idx]...)
	out = append(out, scriptTag...)
	out = append(out, html[idx:]...)

	return out
}

// lastIndexFold is bytes.LastIndex with ASCII case folding, enough for
// matching HTML tags.
func lastIndexFold(s, sub []byte) int {
	lower := bytes.ToLower(s)

	return bytes.LastIndex(lower, bytes.ToLower(sub))
}
