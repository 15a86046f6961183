// Command parfor drives the parallel-for scheduler with a synthetic
// frame workload.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/azargarov/parfor/cmd/parfor/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "parfor:", err)
		os.Exit(1)
	}
}
