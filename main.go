// Package main is the entry point for the whaletop application.
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/whaletop/whaletop/cmd"
)

func main() {
	// Panic recovery: the dashboard puts the terminal into alternate
	// screen and raw modes, so an unhandled panic must still produce a
	// readable stack trace and a clean exit code.
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\n❌ PANIC: %v\n", r)
			fmt.Fprintf(os.Stderr, "\nStack trace:\n%s\n", debug.Stack())
			os.Exit(1)
		}
	}()

	cmd.Execute()
}
