package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/abgdnv/storefront/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		if !cli.Reported(err) {
			_, _ = fmt.Fprintf(os.Stderr, "storefront: %v\n", err)
		}
		stop()
		os.Exit(cli.GetExitCode(err))
	}
}
