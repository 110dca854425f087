// Package main is the entrypoint for agentlink: the editor-side bridge
// server plus a small agent CLI for calling it.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "agentlink: %v\n", err)
		os.Exit(1)
	}
}
