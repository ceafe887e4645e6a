package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/resilitics/resilitics/internal/cli"
)

func main() {
	// One SIGINT/SIGTERM stops long-running commands gracefully; the chaos
	// scheduler, watcher, and server all treat context cancellation as a
	// normal shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
