// Package main is the entry point for the metamcp gateway.
package main

import (
	"os"

	"github.com/metamcp/metamcp/cmd/metamcp/app"
)

func main() {
	if err := app.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
