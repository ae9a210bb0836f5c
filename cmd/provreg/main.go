// Package main provides the provreg binary entry point.
// Provreg is a Common Provenance Model registry node: it validates PROV
// documents against the CPM backbone rules, attests accepted documents
// with trusted party tokens, and maintains meta-provenance lineage.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/c360studio/provreg/commands"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
