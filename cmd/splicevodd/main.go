// Package main is the entry point for splicevodd.
package main

import (
	"os"

	"github.com/splicevod/splicevod/cmd/splicevodd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
