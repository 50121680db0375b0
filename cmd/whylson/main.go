// Command whylson keeps LIGO contract sources, their registry entries and
// their compiled Michelson artifacts in step.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/whylson/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			// Usage errors; command failures are already reported.
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
