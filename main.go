// The main package for the newswatch executable.
package main

import (
	"github.com/tkoide/newswatch/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
