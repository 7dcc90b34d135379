// Command fixity verifies archival devices against their knowledge-graph
// description: file census, SHA-256 hashing, count reconciliation and
// digest integrity checks, with a local run ledger.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Commands report their own errors; only flag and argument errors
		// reach here unreported.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
