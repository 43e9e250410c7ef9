// Package main provides the session worker for the voice agent.
//
// Usage:
//
//	leadvoice-agent start
//
// The worker connects to the front door server, registers itself, and
// handles call jobs until interrupted.
package main

import (
	"fmt"
	"os"

	"github.com/raaestate/leadvoice/cmd/leadvoice-agent/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
