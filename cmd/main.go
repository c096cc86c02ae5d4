package main

import (
	"os"

	"github.com/4-gent/phisherman/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
