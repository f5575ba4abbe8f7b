// Package main is the entry point for the taskdeck CLI.
package main

import (
	"os"

	"github.com/bkonkle/taskdeck/internal/cli"
)

// Set with -ldflags "-X main.version=... -X main.commit=... -X main.date=..."
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, date)
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
