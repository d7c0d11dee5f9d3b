// Command sfwa checks single-file web apps against sfwa-abi-1 contracts.
package main

import (
	"context"
	"os"

	"github.com/roach88/sfwa/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
