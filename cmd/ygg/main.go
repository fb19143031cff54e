// Package main provides the ygg binary entry point.
// Yggdrasil is a bioinformatics pipeline orchestrator: it watches the
// projects database and instrument filesystems, resolves each project to
// a processing realm and drives its HPC job lifecycle.
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/ngisweden/yggdrasil/commands"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n%s", r, debug.Stack())
			os.Exit(1)
		}
	}()
	os.Exit(commands.Execute())
}
