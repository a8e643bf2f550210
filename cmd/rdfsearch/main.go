// Package main provides the entry point for the rdfsearch CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/rdfsearch/cmd/rdfsearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
