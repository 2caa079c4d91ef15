// Command colorctl is the operator CLI for the color report engine. It runs
// schema migrations and the recovery sweep, and inspects or adjusts credit
// balances directly against the database.
package main

import (
	"fmt"
	"os"
)

// Version information, set with -ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	root := newRootCmd()
	root.Version = fmt.Sprintf("%s (commit: %s)", Version, Commit)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
