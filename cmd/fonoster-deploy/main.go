// ABOUTME: Entry point for the fonoster deployment CLI
// ABOUTME: Installs signal handling and hands off to the cobra root command

package main

import (
	"context"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	Execute(ctx)
}
