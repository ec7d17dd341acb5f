// Command flexstream evaluates standing queries against a stream of batch
// files.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/flexstream/internal/cli"
)

func main() {
	err := cli.NewRootCommand().ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
