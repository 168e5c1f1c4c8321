// relo watches source files, re-runs build commands on change, and
// serves the output with live browser reload.
package main

import (
	"os"

	"github.com/relodev/relo/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
