package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"clawcredit-gateway/cmd"
	"clawcredit-gateway/internal/version"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "%s: shutdown requested, no further payments will be authorized\n", version.ServiceName)
			return
		}
		fmt.Fprintf(os.Stderr, "%s: %v\n", version.ServiceName, err)
		os.Exit(1)
	}
}
