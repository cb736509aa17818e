// Package main is the entry point for the lit-briefing CLI.
package main

import (
	"context"
	"io"
	"os"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// execute runs the command tree and maps the outcome to an exit code.
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err != nil {
		root.PrintErrln("Error:", err)
	}
	return exitCode(err)
}
