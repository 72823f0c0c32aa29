// Command docsync stores, replicates and resolves conflicts between JSON
// documents.
package main

import (
	"os"

	"github.com/roach88/docsync/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
