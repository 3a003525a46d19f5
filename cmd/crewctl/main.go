// Command crewctl submits crew jobs to a crew-api server and follows them to completion.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/target/crew-api/cmd/crewctl/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cmd.NewRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1) //nolint:forbidigo // CLI must propagate command failure to callers
	}
}
