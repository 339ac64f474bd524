// Package main is the entry point for the UX interviewer backend.
package main

import (
	"fmt"
	"os"

	"github.com/thuinanutshell/ux-interviewer/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
