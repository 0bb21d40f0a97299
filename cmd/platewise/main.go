// Package main provides the platewise CLI entrypoint.
//
// Usage:
//
//	platewise <command> [options]
//
// Commands:
//   - worker:  queue consumer that analyzes meal photos
//   - ingress: webhook server that enqueues meal jobs
//   - report:  one-shot daily nutrition summary
//   - version: version information
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/platewise/platewise/cli/cmd"
	"github.com/platewise/platewise/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	app := &cli.App{
		Name:           "platewise",
		Usage:          "Meal-photo nutrition analysis pipeline",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.WorkerCommand(),
			cmd.IngressCommand(),
			cmd.ReportCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		// This branch handles unexpected errors that weren't wrapped.
		os.Exit(1)
	}
}

// exitErrHandler handles errors from the CLI, preserving exit codes
// from cli.Exit().
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	// Check for ExitCoder (from cli.Exit), handles wrapped errors
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N", so skip those
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
