package main

import (
	"fmt"
	"os"
)

// Version is set at build time
var Version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	cli := newCLI()

	var err error
	switch cmd {
	case "health":
		err = cli.healthCommand(args)
	case "captcha":
		err = cli.captchaCommand(args)
	case "cancel-deletion":
		err = cli.cancelDeletionCommand(args)
	case "version":
		fmt.Printf("accounts-cli %s\n", Version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`accounts-cli - accounts service command line interface

Usage:
  accounts-cli <command> [subcommand] [options]

Environment Variables:
  ACCOUNTS_URL       Base URL of the accounts server (default: https://127.0.0.1:8443)
  ACCOUNTS_INSECURE  Set to true to accept self-signed certificates

Commands:
  health    Check server health
    live    Liveness check
    ready   Readiness check
    full    Full health report

  captcha   Load a captcha and save its image
    [--out=FILE]      Image path (default: captcha.png)
    [--reload=ID]     Replace the captcha with the given id

  cancel-deletion <token>
            Cancel a pending account deletion with the mailed token

  version   Show CLI version
  help      Show this help

Examples:
  # Check that the database, redis and background tasks are up
  accounts-cli health full

  # Fetch a captcha for a registration form
  accounts-cli captcha --out=/tmp/captcha.png
`)
}
