// Command fitsync manages saved fit sessions: it lists, inspects and deletes
// snapshots, moves them between the snapshot store and the blob archive, and
// checks them against the session rules.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// cli runs the command tree and maps the outcome to an exit status.
func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		if _, writeErr := fmt.Fprintf(stderr, "fitsync: %v\n", err); writeErr != nil {
			return 1
		}
		if isBlocked(err) {
			return 3
		}
		return 1
	}
	return 0
}
