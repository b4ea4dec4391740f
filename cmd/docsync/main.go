// Command docsync is an offline-first document store with remote sync.
package main

import (
	"context"
	"os"

	"github.com/roach88/docsync/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
