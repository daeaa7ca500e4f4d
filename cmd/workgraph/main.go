// Command workgraph is the CLI over the work item graph and event log.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/workgraph/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cli.NewRootCommand().ExecuteContext(ctx)
	if err == nil {
		return cli.ExitSuccess
	}
	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		// Already reported through the command's formatter.
		return exitErr.Code
	}
	// Flag and argument errors from cobra itself.
	fmt.Fprintln(os.Stderr, "Error:", err)
	return cli.ExitCommandError
}
