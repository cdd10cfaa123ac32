package cmd

import (
	"context"
	"fmt"
	"strings"

	"clawcredit-gateway/internal/version"
)

const usage = `clawcredit-gateway is an OpenAI-compatible gateway that pays BlockRun inference through claw.credit.

Usage:
  clawcredit-gateway serve [flags]

Commands:
  serve    Start the HTTP server
  version  Print the gateway version and user agent
  help     Show this help message

Flags:
  -h, --help  Show this help message`

// Execute runs the CLI dispatcher with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return printUsage()
	}

	switch args[0] {
	case "serve":
		return serve(ctx, args[1:])
	case "version", "--version":
		return printVersion()
	case "help", "-h", "--help":
		return printUsage()
	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}
}

func printUsage() error {
	fmt.Println(strings.TrimSpace(usage))
	return nil
}

func printVersion() error {
	fmt.Printf("%s %s (payment mode %s, user agent %s)\n",
		version.ServiceName, version.Version, version.PaymentMode, version.UserAgent())
	return nil
}
