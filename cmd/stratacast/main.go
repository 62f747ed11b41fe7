// cmd/stratacast/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dalemusser/stratacast/internal/app/bootstrap"
	"github.com/dalemusser/waffle/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := app.Run(ctx, bootstrap.Hooks)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "stratacast: %v\n", err)
		os.Exit(1)
	}
}
