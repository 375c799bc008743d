// ./main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/lancet/cmd"
	"github.com/xkilldash9x/lancet/internal/observability"
)

// main is the entry point for the lancet CLI.
func main() {
	// A context that ends on SIGINT or SIGTERM so a running scan can stop
	// between files instead of being killed mid-write.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()
	if err != nil {
		// An interrupt already logged its reason; it is not a failure exit.
		if errors.Is(err, context.Canceled) {
			return
		}
		os.Exit(1)
	}
}
