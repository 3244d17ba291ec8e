// Package main is the entry point for the sigforge CLI.
package main

import (
	"fmt"
	"os"

	"sigforge/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
